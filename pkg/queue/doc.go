// Package queue provides the blocking priority queue that feeds the
// execution pool in direct-input mode. Pop blocks until work arrives,
// which lets the dispatcher park on the queue instead of polling. The
// ordering contract is shared with the store path: smaller numeric
// priority dispatches first, equal priorities dispatch in arrival order.
package queue
