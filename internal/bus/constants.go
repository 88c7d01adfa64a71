package bus

// SubscriberBuffer is the per-subscription channel depth. Stage loops drain
// quickly; the buffer only has to absorb bursts from a single model call.
const SubscriberBuffer = 64
