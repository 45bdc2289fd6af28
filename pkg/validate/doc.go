// Package validate checks a captured window of sample lines and the
// board's supply readings against production limits.
package validate
