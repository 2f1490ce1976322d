/*
@Description: Symbol type shared by the block and stream engines
@Language: Go 1.23.4
*/

package relay

// Symbol is one FEC-produced unit: either an original (Index is a real
// sequence number) or a recovery fragment (Index == FECIndex).
type Symbol struct {
	Payload []byte
	Index   uint32
}

// IsRecovery reports whether s carries the FEC sentinel index.
func (s Symbol) IsRecovery() bool {
	return s.Index == FECIndex
}
