// Package pool
// Author: momentics <momentics@gmail.com>
//
// Buffer pooling for read chunks handed to the protocol engine.
package pool
