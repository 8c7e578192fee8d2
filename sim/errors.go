package sim

import "errors"

// Error kinds surfaced at the pipeline boundary. Callers wrap these with
// fmt.Errorf("...: %w", ErrX) and classify with errors.Is.
var (
	ErrModelNotFound       = errors.New("model not found")
	ErrSettingsParse       = errors.New("settings parse error")
	ErrRunFailed           = errors.New("simulation run failed")
	ErrStoreWrite          = errors.New("store write error")
	ErrStoreRead           = errors.New("store read error")
	ErrStoreFormat         = errors.New("store format error")
	ErrMissingParameter    = errors.New("missing parameter")
	ErrMalformedIndices    = errors.New("malformed indices")
	ErrStaleCellReference  = errors.New("stale cell reference")
	ErrMissingDelayMapping = errors.New("missing delay mapping")
	ErrMissingArchitecture = errors.New("missing cell architecture")
	ErrInvalidRequest      = errors.New("invalid request")
)

// errorKinds is ordered so that the most specific kind wins when an error
// chain wraps more than one (e.g. a RunFailed wrapping a SettingsParse).
var errorKinds = []struct {
	err  error
	name string
}{
	{ErrModelNotFound, "model_not_found"},
	{ErrSettingsParse, "settings_parse"},
	{ErrStaleCellReference, "stale_cell_reference"},
	{ErrMissingArchitecture, "missing_architecture"},
	{ErrMissingDelayMapping, "missing_delay_mapping"},
	{ErrMalformedIndices, "malformed_indices"},
	{ErrMissingParameter, "missing_parameter"},
	{ErrInvalidRequest, "invalid_request"},
	{ErrStoreFormat, "store_format"},
	{ErrStoreRead, "store_read"},
	{ErrStoreWrite, "store_write"},
	{ErrRunFailed, "run_failed"},
}

// KindOf returns a short, stable name for the error kind carried by err,
// used as a log field and metrics label. Unclassified errors yield "internal".
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "internal"
}
