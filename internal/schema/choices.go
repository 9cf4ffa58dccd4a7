package schema

import (
	"context"
	"fmt"

	"github.com/faciam-dev/gcadmin/pkg/adminerr"
	"github.com/faciam-dev/gcadmin/pkg/descriptor"
	"github.com/faciam-dev/gcadmin/pkg/store"
)

// MaxChoices caps how many related rows a relation widget embeds.
const MaxChoices = 500

// StoreChoices loads relation choices through a storage reader.
type StoreChoices struct {
	Reader store.Reader
}

// LoadChoices returns (pk, label) pairs of target ordered by pk. The label
// is labelField when set, else the first string field, else the pk.
func (s StoreChoices) LoadChoices(ctx context.Context, target *descriptor.Model, labelField string) ([]descriptor.Choice, error) {
	pk := target.PKAttr()
	if labelField == "" {
		labelField = pk
		for _, f := range target.Fields() {
			if f.Kind == descriptor.KindString && !f.IsRelation() {
				labelField = f.Name
				break
			}
		}
	} else if !target.Has(labelField) {
		return nil, adminerr.Configf(target.ID().String(), labelField, "label field not declared")
	}
	rows, err := s.Reader.FetchAll(ctx, store.NewQuery(target.ID()).Only(pk, labelField).OrderBy(pk).Limit(MaxChoices))
	if err != nil {
		return nil, fmt.Errorf("load %s choices: %w", target.ID(), err)
	}
	out := make([]descriptor.Choice, 0, len(rows))
	for _, r := range rows {
		out = append(out, descriptor.Choice{Value: r[pk], Label: fmt.Sprint(r[labelField])})
	}
	return out, nil
}
