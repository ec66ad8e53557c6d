// Package mutexchan moves a byte stream between two processes on one host
// using nothing but the held/free state of a named mutual-exclusion primitive.
//
// A Sender creates the primitive and a Receiver opens it. Both sides perform
// a rendezvous that uses the primitive as a one-bit acknowledgment and the
// shared wall clock to agree on a start instant (the epoch). The Sender then
// holds the primitive for a 0 bit and leaves it free for a 1 bit, one bit per
// slot, most significant bit first. The Receiver starts half a slot earlier
// and samples the primitive in the middle of every sender slot. The stream
// ends when the Sender acquires the primitive and goes away without releasing
// it, which the Receiver observes as abandonment.
//
// Example usage:
//
//	opener := primitive.NewOpener(primitive.Options{})
//	cfg := mutexchan.DefaultConfig()
//
//	tx, _ := mutexchan.NewSession(mutexchan.RoleSender, opener, cfg)
//	err := tx.Send(ctx, []byte("Hi"))
//
//	rx, _ := mutexchan.NewSession(mutexchan.RoleReceiver, opener, cfg)
//	data, err := rx.Receive(ctx)
//
// The protocol has no checksum and no mid-stream resynchronisation: clock
// skew or scheduling delay beyond half a slot corrupts the remaining bits.
package mutexchan
