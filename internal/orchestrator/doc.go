// Package orchestrator drives uploads through the transcription pipeline.
//
// Submit stores both files in the upload store, records a queued job, and
// completes it immediately when a cached transcript already covers the audio.
// A background dispatcher picks up the remaining queued jobs and runs each
// one through repair, cache recheck, and transcription on a bounded worker
// pool. Concurrent jobs that share an audio identity are coalesced so the
// model runs at most once per identity at a time.
package orchestrator
