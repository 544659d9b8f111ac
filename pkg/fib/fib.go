// Package fib is the deliberately slow workload served over RPC
package fib

import "github.com/pkg/errors"

// MaxN is the largest input Recursive accepts
const MaxN = 40

// Recursive computes n-th Fibonacci number by naive recursion, fib(0) = 0, fib(1) = 1
func Recursive(n int) (int, error) {
	if n < 0 {
		return 0, errors.Errorf("fib: negative input %d", n)
	}
	if n > MaxN {
		return 0, errors.Errorf("fib: input %d exceeds %d", n, MaxN)
	}
	return recursive(n), nil
}

func recursive(n int) int {
	if n < 2 {
		return n
	}
	return recursive(n-1) + recursive(n-2)
}
