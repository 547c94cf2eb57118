// Package coordinator implements the lock-step broadcast engine.
//
// A Coordinator owns a Registry of Sessions, one per connected client, and
// runs a single loop that advances all of them through numbered cycles:
//
//  1. sleep the poll interval
//  2. deregister sessions whose connection failed
//  3. admit at most one queued connection
//  4. open a Barrier sized to the registry and hand it to every session
//  5. wait until each session has arrived at the barrier
//  6. sleep a random delay
//  7. open the send Gate of every session that arrived
//
// Each session runs its own worker goroutine that receives the barrier,
// arrives, waits on its gate, writes "Message {n} for client {host}:{port}."
// and reads one acknowledgement byte before waiting for the next barrier.
// A session only arrives after acknowledging the previous cycle's message,
// so the barrier wait also covers every in-flight send and acknowledgement.
package coordinator
