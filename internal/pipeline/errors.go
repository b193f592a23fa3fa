package pipeline

import "errors"

// errSessionEnded signals normal conversation termination through the
// errgroup so all loops unwind together.
var errSessionEnded = errors.New("pipeline: session ended")

// errSourceDrained signals that the audio source reached EOF.
var errSourceDrained = errors.New("pipeline: audio source drained")
