package trace

import (
	"fmt"
)

func bprintf(f string, args ...interface{}) []byte {
	return []byte(fmt.Sprintf(f, args...))
}

func (o *OpNop) MarshalJSON() ([]byte, error) {
	return bprintf(`{"op":%d}`, OP_NOP), nil
}

func (o *OpFetch) MarshalJSON() ([]byte, error) {
	return bprintf(`{"op":%d,"addr":%d,"size":%d}`, OP_FETCH, o.Addr, o.Size), nil
}

func (o *OpMemRead) MarshalJSON() ([]byte, error) {
	return bprintf(`{"op":%d,"addr":%d,"size":%d,"value":%d}`, OP_MEM_READ, o.Addr, o.Size, o.Value), nil
}

func (o *OpMemWrite) MarshalJSON() ([]byte, error) {
	return bprintf(`{"op":%d,"addr":%d,"size":%d,"value":%d}`, OP_MEM_WRITE, o.Addr, o.Size, o.Value), nil
}

func (o *OpFault) MarshalJSON() ([]byte, error) {
	return bprintf(`{"op":%d,"addr":%d,"errno":%d}`, OP_FAULT, o.Addr, o.Errno), nil
}

func (o *OpRollback) MarshalJSON() ([]byte, error) {
	return bprintf(`{"op":%d,"addr":%d}`, OP_ROLLBACK, o.Addr), nil
}
