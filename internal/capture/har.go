package capture

// The subset of the HAR 1.2 format the extractor reads. Everything else in the
// document is ignored.
type harDocument struct {
	Log *harLog `json:"log"`
}

type harLog struct {
	Entries []harEntry `json:"entries"`
}

type harEntry struct {
	Request harRequest `json:"request"`
}

type harRequest struct {
	URL     string      `json:"url"`
	Headers []harHeader `json:"headers"`
}

type harHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}
