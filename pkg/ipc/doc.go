// Package ipc implements the message channel between a bedrock primary and
// its workers.
//
// Each message travels in a versioned CBOR envelope {v, type, body}. The
// primary passes a pair of pipes to every worker as file descriptors
// [ReadFD] and [WriteFD]; a worker opens them with [Inherited].
//
// Messages form a closed set. Consumers implement [Visitor] and call
// Message.Accept, so adding a kind breaks every consumer at compile time:
//
//	for {
//		m, err := conn.Recv()
//		if err != nil {
//			return err
//		}
//		if err := m.Accept(handler); err != nil {
//			return err
//		}
//	}
package ipc
