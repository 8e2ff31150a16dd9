// Package statement classifies SQL text into a small typed descriptor.
//
// Trigger configuration carries raw SQL chosen by operators. Rather than
// waiting for the database to reject a malformed statement after the first
// poll interval has elapsed, the trigger parses each statement once at
// construction and checks its kind and placeholder count.
//
// The lexer understands just enough SQL to do that reliably:
//   - line (--) and block (/* */) comments
//   - single-quoted literals, double-quoted and backquoted identifiers
//   - Postgres dollar-quoted bodies ($$...$$, $tag$...$tag$) and :: casts
//   - placeholder styles ?, ?NNN, $N, :N, :name, @name
//   - array slices (tags[1:2]), which are not placeholders
//
// Numbered placeholders must run from 1 without gaps, since the driver
// expects as many arguments as the highest index. A WITH clause records
// any UPDATE, INSERT or DELETE nested inside it so that a SELECT carrying a
// data-modifying CTE is not mistaken for a read.
//
// It is not a SQL parser. Anything beyond the verbs and the placeholders is
// left for the database to judge.
package statement
