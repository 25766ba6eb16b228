package matching

import (
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// Target is the invoice a payment is being matched against.
type Target struct {
	CustomerName      string
	OutstandingAmount decimal.Decimal
}

// Candidate is a payment that could settle the target.
type Candidate struct {
	ID        string
	PayerName string
	Amount    decimal.Decimal
}

// Score is the confidence (0-100) that a candidate pays the target.
type Score struct {
	Candidate
	NameScore   float64
	AmountScore float64
	Final       float64
	Decision    string
}

const (
	DecisionStrong = "strong"
	DecisionReview = "review"
	DecisionWeak   = "weak"
)

const (
	nameWeight   = 0.6
	amountWeight = 0.4
)

// editOptions counts a substitution as a single edit.
var editOptions = levenshtein.Options{
	InsCost: 1,
	DelCost: 1,
	SubCost: 1,
	Matches: levenshtein.IdenticalRunes,
}

// Rank scores every candidate against t and orders them best first. Ties
// keep their input order.
func Rank(t Target, candidates []Candidate) []Score {
	scores := make([]Score, len(candidates))
	for i, c := range candidates {
		scores[i] = score(t, c)
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Final > scores[j].Final
	})
	return scores
}

func score(t Target, c Candidate) Score {
	s := Score{
		Candidate:   c,
		NameScore:   NameSimilarity(c.PayerName, t.CustomerName),
		AmountScore: AmountScore(c.Amount, t.OutstandingAmount),
	}
	s.Final = math.Min(nameWeight*s.NameScore+amountWeight*s.AmountScore, 100)

	switch {
	case s.Final >= 90:
		s.Decision = DecisionStrong
	case s.Final >= 60:
		s.Decision = DecisionReview
	default:
		s.Decision = DecisionWeak
	}
	return s
}

// NameSimilarity compares each token of want with its closest token in
// got and averages the similarities, scaled to 0-100.
func NameSimilarity(got, want string) float64 {
	gTokens := strings.Fields(normalizeName(got))
	wTokens := strings.Fields(normalizeName(want))

	if len(wTokens) == 0 || len(gTokens) == 0 {
		return 0
	}

	total := 0.0
	for _, w := range wTokens {
		best := 0.0
		for _, g := range gTokens {
			if sim := tokenSimilarity(w, g); sim > best {
				best = sim
			}
		}
		total += best
	}
	return total / float64(len(wTokens)) * 100
}

func tokenSimilarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	maxLen := math.Max(float64(len(ra)), float64(len(rb)))
	if maxLen == 0 {
		return 1
	}
	dist := levenshtein.DistanceForStrings(ra, rb, editOptions)
	return 1 - float64(dist)/maxLen
}

// AmountScore is 100 when the payment covers the outstanding balance
// exactly and falls off with the relative difference.
func AmountScore(paid, outstanding decimal.Decimal) float64 {
	if !outstanding.IsPositive() || !paid.IsPositive() {
		return 0
	}
	diff := paid.Sub(outstanding).Abs().Div(outstanding).InexactFloat64()

	switch {
	case diff == 0:
		return 100
	case diff <= 0.01:
		return 90
	case diff <= 0.10:
		return 70
	case diff <= 0.50:
		return 40
	default:
		return 10
	}
}

func normalizeName(s string) string {
	s = strings.ToUpper(s)
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "-", " ")
	return strings.TrimSpace(s)
}
