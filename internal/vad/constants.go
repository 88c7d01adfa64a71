package vad

// BlockSize is the sample count the activity model scores at a time
// (512 samples = 32 ms at 16 kHz).
const BlockSize = 512
