// Package process runs capture subprocesses (rpicam-vid, rpicam-jpeg,
// ffmpeg) with bounded shutdown.
//
// Each process gets its own process group so helpers it spawns are stopped
// with it. Stopping sends SIGINT to the group and escalates to SIGKILL after
// the graceful timeout. Stdout can be handed to a reader (the MJPEG frame
// splitter) while stderr is logged through a LogParser.
package process
