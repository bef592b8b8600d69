package speculorn

import (
	"bytes"
	"testing"

	"github.com/speculorn/speculorn/models"
)

func TestCheckpointRollback(t *testing.T) {
	m, c := fakeModel(t, &models.Config{})
	c.RegWrite(fakeRegA, 1)
	c.RegWrite(fakeRegFlags, 0xaa)
	m.specWindow = 3

	if m.Speculating() {
		t.Fatal("Speculating() should be false before any checkpoint")
	}
	if err := m.Checkpoint(0x1010); err != nil {
		t.Fatal(err)
	}
	if !m.Speculating() || m.Depth() != 1 {
		t.Errorf("Depth() returned %d, expecting 1", m.Depth())
	}
	if m.specWindow != 0 {
		t.Errorf("checkpoint left the window at %d, expecting a fresh one", m.specWindow)
	}

	c.RegWrite(fakeRegA, 2)
	c.RegWrite(fakeRegFlags, 0xbb)

	resume, err := m.Rollback()
	if err != nil {
		t.Fatal(err)
	}
	if resume != 0x1010 {
		t.Errorf("Rollback() returned %#x, expecting 0x1010", resume)
	}
	if m.Speculating() {
		t.Error("Speculating() should be false after the last rollback")
	}
	if val, _ := c.RegRead(fakeRegA); val != 1 {
		t.Errorf("register rolled back to %d, expecting 1", val)
	}
	if val, _ := c.RegRead(fakeRegFlags); val != 0xaa {
		t.Errorf("flags rolled back to %#x, expecting 0xaa", val)
	}
	if m.specWindow != 3 {
		t.Errorf("window rolled back to %d, expecting 3", m.specWindow)
	}
}

func TestRollbackStoresNewestFirst(t *testing.T) {
	m, c := fakeModel(t, &models.Config{})
	addr := uint64(0x3000)
	c.MemWrite(addr, []byte("original"))

	if err := m.Checkpoint(0x1000); err != nil {
		t.Fatal(err)
	}
	// two speculative stores to the same cell, each logging the bytes it
	// is about to clobber
	orig, _ := c.MemRead(addr, 8)
	m.LogStore(addr, orig)
	c.MemWrite(addr, []byte("store-01"))
	orig, _ = c.MemRead(addr, 8)
	m.LogStore(addr, orig)
	c.MemWrite(addr, []byte("store-02"))

	if _, err := m.Rollback(); err != nil {
		t.Fatal(err)
	}
	got, _ := c.MemRead(addr, 8)
	if !bytes.Equal(got, []byte("original")) {
		t.Errorf("memory rolled back to %q, expecting %q", got, "original")
	}
}

func TestNestedCheckpoints(t *testing.T) {
	m, c := fakeModel(t, &models.Config{})
	c.RegWrite(fakeRegA, 1)
	m.specWindow = 2
	if err := m.Checkpoint(0x10); err != nil {
		t.Fatal(err)
	}
	c.RegWrite(fakeRegA, 2)
	m.specWindow = 7
	if err := m.Checkpoint(0x20); err != nil {
		t.Fatal(err)
	}
	c.RegWrite(fakeRegA, 3)
	if m.Depth() != 2 {
		t.Fatalf("Depth() returned %d, expecting 2", m.Depth())
	}

	resume, err := m.Rollback()
	if err != nil {
		t.Fatal(err)
	}
	if val, _ := c.RegRead(fakeRegA); resume != 0x20 || val != 2 {
		t.Errorf("inner rollback gave resume=%#x a=%d, expecting 0x20 and 2", resume, val)
	}
	if m.specWindow != 7 {
		t.Errorf("inner rollback left window %d, expecting 7", m.specWindow)
	}

	resume, err = m.Rollback()
	if err != nil {
		t.Fatal(err)
	}
	if val, _ := c.RegRead(fakeRegA); resume != 0x10 || val != 1 {
		t.Errorf("outer rollback gave resume=%#x a=%d, expecting 0x10 and 1", resume, val)
	}
	if m.specWindow != 2 {
		t.Errorf("outer rollback left window %d, expecting 2", m.specWindow)
	}

	if _, err := m.Rollback(); err == nil {
		t.Error("Rollback() without a checkpoint should fail")
	}
}

func TestNestedStoresLandOnOldest(t *testing.T) {
	m, c := fakeModel(t, &models.Config{})
	addr := uint64(0x3000)
	c.MemWrite(addr, []byte("level-00"))

	if err := m.Checkpoint(0x10); err != nil {
		t.Fatal(err)
	}
	orig, _ := c.MemRead(addr, 8)
	m.LogStore(addr, orig)
	c.MemWrite(addr, []byte("level-01"))

	if err := m.Checkpoint(0x20); err != nil {
		t.Fatal(err)
	}
	orig, _ = c.MemRead(addr, 8)
	m.LogStore(addr, orig)
	c.MemWrite(addr, []byte("level-02"))

	if _, err := m.Rollback(); err != nil {
		t.Fatal(err)
	}
	got, _ := c.MemRead(addr, 8)
	if !bytes.Equal(got, []byte("level-01")) {
		t.Errorf("memory rolled back to %q, expecting %q", got, "level-01")
	}
	if _, err := m.Rollback(); err != nil {
		t.Fatal(err)
	}
	got, _ = c.MemRead(addr, 8)
	if !bytes.Equal(got, []byte("level-00")) {
		t.Errorf("memory rolled back to %q, expecting %q", got, "level-00")
	}
}

func TestContextPool(t *testing.T) {
	m, _ := fakeModel(t, &models.Config{})
	if err := m.Checkpoint(0x10); err != nil {
		t.Fatal(err)
	}
	ctx := m.checkpoints[0].ctx
	if _, err := m.Rollback(); err != nil {
		t.Fatal(err)
	}
	if len(m.ctxPool) != 1 || m.ctxPool[0] != ctx {
		t.Fatal("squashed checkpoint context should return to the pool")
	}
	if err := m.Checkpoint(0x20); err != nil {
		t.Fatal(err)
	}
	if len(m.ctxPool) != 0 {
		t.Error("checkpoint should drain the context pool")
	}
	if m.checkpoints[0].ctx != ctx {
		t.Error("checkpoint should reuse the pooled context")
	}
}

func TestDropCheckpoints(t *testing.T) {
	m, _ := fakeModel(t, &models.Config{})
	if err := m.Checkpoint(0x10); err != nil {
		t.Fatal(err)
	}
	if err := m.Checkpoint(0x20); err != nil {
		t.Fatal(err)
	}
	m.specWindow = 9
	m.dropCheckpoints()
	if m.Depth() != 0 {
		t.Errorf("Depth() returned %d, expecting 0", m.Depth())
	}
	if len(m.ctxPool) != 2 {
		t.Errorf("pool holds %d contexts, expecting 2", len(m.ctxPool))
	}
	if m.specWindow != 0 {
		t.Errorf("window is %d, expecting 0", m.specWindow)
	}
}
