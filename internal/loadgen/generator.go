package loadgen

import (
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/okian/crmscore/internal/domain/model"
)

// Kinds sent by the generator.
const (
	kindEntityUpsert      = "entity.upsert"
	kindOpportunityUpsert = "opportunity.upsert"
)

var stages = []string{"lead", "qualification", "proposal", "negotiation", ""}

// generator produces a reproducible stream of CRM records for a seed.
type generator struct {
	rng *rand.Rand
	now func() time.Time
}

func newGenerator(seed uint64) *generator {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano()) //nolint:gosec // load data needs no crypto randomness
	}
	return &generator{
		rng: rand.New(rand.NewPCG(seed, seed>>1)), //nolint:gosec // see above
		now: time.Now,
	}
}

// events returns every entity upsert followed by every opportunity upsert.
func (g *generator) events(cfg *Config) []Event {
	ts := g.now().UTC().Format(time.RFC3339)
	out := make([]Event, 0, cfg.Entities*(1+cfg.OpportunitiesPerEntity))
	ids := make([]string, cfg.Entities)

	for i := range ids {
		e := g.entity(i)
		ids[i] = e.ID
		out = append(out, Event{EventID: uuid.NewString(), Kind: kindEntityUpsert, Entity: &e, TS: ts})
	}
	for i, id := range ids {
		for j := 0; j < cfg.OpportunitiesPerEntity; j++ {
			o := g.opportunity(id, i, j)
			out = append(out, Event{EventID: uuid.NewString(), Kind: kindOpportunityUpsert, Opportunity: &o, TS: ts})
		}
	}
	return out
}

// entity draws revenue and headcount across every scoring band, leaving
// either one out now and then.
func (g *generator) entity(i int) Entity {
	e := Entity{
		ID:     uuid.NewString(),
		Name:   "Company " + strconv.Itoa(i+1),
		Status: string(model.StatusProspect),
	}
	if g.rng.IntN(3) == 0 {
		e.Status = string(model.StatusClient)
	}
	if g.rng.IntN(10) > 0 {
		rev := g.rng.Int64N(200_000_000)
		e.Revenue = &rev
	}
	if g.rng.IntN(10) > 0 {
		emp := g.rng.Int64N(300)
		e.Employees = &emp
	}
	return e
}

func (g *generator) opportunity(entityID string, i, j int) Opportunity {
	return Opportunity{
		ID:          uuid.NewString(),
		EntityID:    entityID,
		Title:       "Deal " + strconv.Itoa(i+1) + "-" + strconv.Itoa(j+1),
		Value:       g.rng.Int64N(100_000_000),
		Probability: g.rng.IntN(101),
		Stage:       stages[g.rng.IntN(len(stages))],
	}
}
