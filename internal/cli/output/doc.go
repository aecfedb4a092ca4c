// Package output provides output formatting for meshsync-cli.
//
// Two formats are supported: an aligned text table for humans and
// JSON for scripts. The table formatter derives its columns from
// struct fields via reflection so command code only hands over plain
// result structs.
package output
