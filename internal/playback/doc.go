// Package playback decides which transcript segment is active for a live
// audio clock and reports highlight transitions.
//
// The engine re-scans the segment list from the start on every frame
// instead of tracking a cursor. Transcripts stay small enough that the
// linear pass is free, and statelessness makes backward seeks correct
// without special cases: jumping the clock anywhere yields the same answer
// as a fresh query at that position. Each Advance emits at most one
// enter/exit pair, so a consumer toggling highlights never flickers.
//
// The engine owns nothing but its cursor and is single-goroutine by
// contract; drive it from one loop (or the Run helper) and it needs no
// locking.
package playback
