package models

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// TestCase is a raw x86-64 machine code snippet plus optional per-instruction
// metadata. The metadata comes out of band as a JSON sidecar written by the
// generator; it is keyed by instruction offset into the code.
type TestCase struct {
	Name string
	Code []byte
	Meta map[uint64]*Instruction
}

type metaFile struct {
	Instructions []*Instruction `json:"instructions"`
}

// LoadTestCase reads a code snippet from path. When a matching ".json"
// sidecar exists next to it, the instruction metadata is loaded too.
func LoadTestCase(path string) (*TestCase, error) {
	code, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read test case")
	}
	if len(code) == 0 {
		return nil, errors.Errorf("empty test case: %s", path)
	}
	tc := &TestCase{Name: path, Code: code}

	if err := tc.LoadMeta(metaPath(path)); err != nil {
		if os.IsNotExist(errors.Cause(err)) {
			return tc, nil
		}
		return nil, err
	}
	return tc, nil
}

// LoadMeta replaces the test case's metadata with the sidecar at path.
func (tc *TestCase) LoadMeta(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "failed to open metadata")
	}
	defer f.Close()
	var meta metaFile
	if err := json.NewDecoder(f).Decode(&meta); err != nil {
		return errors.Wrapf(err, "failed to parse %s", path)
	}
	tc.Meta = make(map[uint64]*Instruction, len(meta.Instructions))
	for _, ins := range meta.Instructions {
		tc.Meta[ins.Offset] = ins
	}
	return nil
}

func metaPath(path string) string {
	if i := strings.LastIndex(path, "."); i > strings.LastIndex(path, "/") {
		path = path[:i]
	}
	return path + ".json"
}

func (tc *TestCase) HasMeta() bool {
	return len(tc.Meta) > 0
}

// SaveMeta writes the sidecar for a test case, keeping instruction order by
// offset stable for diffing.
func (tc *TestCase) SaveMeta(path string) error {
	meta := &metaFile{}
	for _, ins := range tc.Meta {
		meta.Instructions = append(meta.Instructions, ins)
	}
	sortInstructions(meta.Instructions)
	out, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode metadata")
	}
	return errors.Wrap(ioutil.WriteFile(path, out, 0644), "failed to write metadata")
}

func sortInstructions(ins []*Instruction) {
	for i := 1; i < len(ins); i++ {
		for j := i; j > 0 && ins[j-1].Offset > ins[j].Offset; j-- {
			ins[j-1], ins[j] = ins[j], ins[j-1]
		}
	}
}
