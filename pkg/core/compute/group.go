package compute

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/models"
)

// Group is a maximal set of modifiers sharing the eight grouping
// attributes. Values within a group sum additively: two 5% discounts
// collapse into one 10% group.
type Group struct {
	Key             string
	TaxSetting      models.TaxSetting
	Kind            models.ModifierKind
	Category        string
	AffectsQuantity bool
	CostPercentage  decimal.Decimal
	DisplayMode     string
	ApplicationType models.ApplicationType
	ProductID       string

	CombinedValue    decimal.Decimal
	Modifiers        []models.Modifier
	ModifierIDs      []string
	MinChainPriority int
	MinCreatedAt     time.Time
}

// groupKey renders the 8-attribute tuple as a stable string.
func groupKey(m models.Modifier) string {
	productID := m.ProductID
	if productID == "" {
		productID = "null"
	}
	return strings.Join([]string{
		string(m.TaxSetting),
		string(m.Kind),
		m.Category,
		strconv.FormatBool(m.AffectsQuantity),
		m.CostPercentage.String(),
		m.DisplayMode,
		string(m.ApplicationType),
		productID,
	}, "|")
}

// groupModifiers collapses equal-keyed modifiers. The input must already
// carry resolved tax settings.
func groupModifiers(modifiers []models.Modifier) []*Group {
	byKey := make(map[string]*Group)
	var order []string
	for _, m := range modifiers {
		key := groupKey(m)
		g, ok := byKey[key]
		if !ok {
			g = &Group{
				Key:              key,
				TaxSetting:       m.TaxSetting,
				Kind:             m.Kind,
				Category:         m.Category,
				AffectsQuantity:  m.AffectsQuantity,
				CostPercentage:   m.CostPercentage,
				DisplayMode:      m.DisplayMode,
				ApplicationType:  m.ApplicationType,
				ProductID:        m.ProductID,
				MinChainPriority: m.ChainPriority,
				MinCreatedAt:     m.CreatedAt,
			}
			byKey[key] = g
			order = append(order, key)
		}
		g.CombinedValue = g.CombinedValue.Add(m.Value)
		g.Modifiers = append(g.Modifiers, m)
		g.ModifierIDs = append(g.ModifierIDs, m.ID)
		if m.ChainPriority < g.MinChainPriority {
			g.MinChainPriority = m.ChainPriority
		}
		if g.MinCreatedAt.IsZero() || (!m.CreatedAt.IsZero() && m.CreatedAt.Before(g.MinCreatedAt)) {
			g.MinCreatedAt = m.CreatedAt
		}
	}

	groups := make([]*Group, 0, len(byKey))
	for _, key := range order {
		groups = append(groups, byKey[key])
	}
	return groups
}

// Cohort and attribute ranks for deterministic group ordering. Ranks leave
// room for cohorts and kinds that richer configurations introduce; unknown
// values sort after all known ones.
var (
	applicationRank = map[string]int{
		"pre_tax":  0,
		"cost":     1,
		"post_tax": 2,
	}
	categoryRank = map[string]int{
		"discount":   0,
		"rebate":     1,
		"fee":        2,
		"bonus":      3,
		"adjustment": 4,
	}
	kindRank = map[string]int{
		"percentage":      0,
		"fixed":           1,
		"margin":          2,
		"quantity":        3,
		"cost_adjustment": 4,
	}
)

func rankOf(m map[string]int, key string) int {
	if r, ok := m[key]; ok {
		return r
	}
	return len(m)
}

// sortGroups orders groups deterministically: application cohort, then
// category, then kind, then minimum chain priority, then earliest
// createdAt, finally the group key itself.
func sortGroups(groups []*Group) {
	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if ar, br := rankOf(applicationRank, string(a.ApplicationType)), rankOf(applicationRank, string(b.ApplicationType)); ar != br {
			return ar < br
		}
		if cr, dr := rankOf(categoryRank, a.Category), rankOf(categoryRank, b.Category); cr != dr {
			return cr < dr
		}
		if kr, lr := rankOf(kindRank, string(a.Kind)), rankOf(kindRank, string(b.Kind)); kr != lr {
			return kr < lr
		}
		if a.MinChainPriority != b.MinChainPriority {
			return a.MinChainPriority < b.MinChainPriority
		}
		if !a.MinCreatedAt.Equal(b.MinCreatedAt) {
			return a.MinCreatedAt.Before(b.MinCreatedAt)
		}
		return a.Key < b.Key
	})
}
