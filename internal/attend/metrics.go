package attend

// Recorder receives pipeline and session counters. Implementations must
// be safe for concurrent use.
type Recorder interface {
	FrameProcessed()
	FacesDetected(n int)
	MarkCommitted()
	MarkDeduplicated()
	MarkFailed()
	AlertFired()
	AlertSuppressed()
	ClassifierError()
	SourceRetry()
	SessionStarted()
	SessionStopped()
}

// NopRecorder discards all counters.
type NopRecorder struct{}

func (NopRecorder) FrameProcessed()    {}
func (NopRecorder) FacesDetected(int)  {}
func (NopRecorder) MarkCommitted()     {}
func (NopRecorder) MarkDeduplicated()  {}
func (NopRecorder) MarkFailed()        {}
func (NopRecorder) AlertFired()        {}
func (NopRecorder) AlertSuppressed()   {}
func (NopRecorder) ClassifierError()   {}
func (NopRecorder) SourceRetry()       {}
func (NopRecorder) SessionStarted()    {}
func (NopRecorder) SessionStopped()    {}
