// Package capture turns a microphone or an audio file into the frame
// source the deepgram package subscribes to.
//
// A Source reads fixed-duration linear16 frames from an Input and hands
// each frame to every subscriber. File inputs can be paced at the audio
// rate so that streaming a recording behaves like speaking into a mic.
package capture
