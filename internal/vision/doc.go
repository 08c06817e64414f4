// Package vision implements the VISION role: sampled video frames are
// analyzed independently by an Analyzer on a bounded pool and gathered back
// into decode order.
//
// A frame the analyzer rejects records an error marker in its slot and the
// job continues. When the share of rejected frames exceeds the configured
// threshold the job fails with services.ErrQuality. Analyzer runtime faults
// abort the job with services.ErrInference.
//
// Two analyzers ship with the worker: a built-in luminance/contrast/sharpness
// analyzer, and a bridge to a long-lived Python model process that exchanges
// length-prefixed msgpack messages over stdin/stdout.
package vision
