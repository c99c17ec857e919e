package orchestratornode

import (
	"fmt"

	contractx "github.com/tanpawarit/pharmacy-concierge/agent/contract"
	extractionx "github.com/tanpawarit/pharmacy-concierge/agent/extraction"
)

// MergeFields folds extracted values into the session. The reserved intent
// field is a per-turn signal and is not kept.
func MergeFields(in *GraphState) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}
	if in.ExtractionErr != nil || len(in.Extraction.Fields) == 0 {
		return in, nil
	}

	fields := make(map[string]contractx.FieldValue, len(in.Extraction.Fields))
	for k, v := range in.Extraction.Fields {
		if k == extractionx.FieldIntent {
			continue
		}
		fields[k] = v
	}
	in.Merged = in.Session.MergeFields(fields)
	return in, nil
}
