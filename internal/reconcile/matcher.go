// Package reconcile pairs internal transactions with bank feed lines.
//
// The matcher is pure: it reads the records it is given and returns decisions.
// Persisting those decisions is the caller's job.
package reconcile

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"goldpay/internal/model"

	"github.com/shopspring/decimal"
)

// Weights of the three score components.
type Weights struct {
	Amount      float64
	Date        float64
	Institution float64
}

// Config tunes candidate selection and scoring.
type Config struct {
	// AmountTolerance is the largest accepted |tx.amount - feed.amount|.
	AmountTolerance decimal.Decimal
	// DateWindow is the largest accepted |feed.value_date - tx.occurred_at|.
	DateWindow time.Duration
	// AutoMatchThreshold is the minimum score for an AUTO log.
	AutoMatchThreshold float64
	Weights            Weights
	// ReviewGrace keeps unpaired records younger than this PENDING instead of
	// sending them to manual review. Zero sends them straight away.
	ReviewGrace time.Duration
}

func DefaultConfig() Config {
	return Config{
		AmountTolerance:    decimal.Zero,
		DateWindow:         72 * time.Hour,
		AutoMatchThreshold: 90,
		Weights:            Weights{Amount: 0.6, Date: 0.2, Institution: 0.2},
	}
}

// Match is one selected (transaction, feed) pair.
type Match struct {
	TransactionID string
	BankFeedID    string
	OwnerID       string
	Score         float64
	DateDistance  time.Duration
}

// Result holds the decisions of one pass.
type Result struct {
	// AutoMatches scored at or above the threshold.
	AutoMatches []Match
	// LowConfidence pairs were the best available but scored below the
	// threshold. Both endpoints go to manual review.
	LowConfidence []Match
	// ReviewTransactionIDs and ReviewFeedIDs hold every record to move to
	// MANUAL_REVIEW, including the LowConfidence endpoints.
	ReviewTransactionIDs []string
	ReviewFeedIDs        []string
	// Deferred counts unpaired records left PENDING by ReviewGrace.
	Deferred int
	// Candidates is the number of pairs that passed the filters.
	Candidates int
}

// Empty reports whether the pass decided nothing.
func (r Result) Empty() bool {
	return len(r.AutoMatches) == 0 && len(r.ReviewTransactionIDs) == 0 && len(r.ReviewFeedIDs) == 0
}

type Matcher struct {
	cfg Config
	now func() time.Time
}

func NewMatcher(cfg Config) *Matcher {
	cfg.Weights = normalize(cfg.Weights)
	if cfg.AmountTolerance.IsNegative() {
		cfg.AmountTolerance = decimal.Zero
	}
	if cfg.DateWindow < 0 {
		cfg.DateWindow = 0
	}
	return &Matcher{cfg: cfg, now: time.Now}
}

func (m *Matcher) Config() Config {
	return m.cfg
}

func normalize(w Weights) Weights {
	if w.Amount < 0 || w.Date < 0 || w.Institution < 0 {
		return DefaultConfig().Weights
	}
	sum := w.Amount + w.Date + w.Institution
	if sum <= 0 {
		return DefaultConfig().Weights
	}
	return Weights{Amount: w.Amount / sum, Date: w.Date / sum, Institution: w.Institution / sum}
}

type candidate struct {
	tx    *model.Transaction
	feed  *model.BankFeed
	score float64
	dist  time.Duration
}

// Reconcile runs one pass over transactions and feeds. Only PENDING records
// take part, so running it again on its own output decides nothing new.
//
// ctx is checked between pair evaluations; a cancelled pass returns ctx.Err()
// and no decisions.
func (m *Matcher) Reconcile(ctx context.Context, transactions []model.Transaction, feeds []model.BankFeed) (Result, error) {
	var res Result

	txs := make([]*model.Transaction, 0, len(transactions))
	for i := range transactions {
		if transactions[i].ReconciliationStatus == model.ReconciliationPending {
			txs = append(txs, &transactions[i])
		}
	}
	fds := make([]*model.BankFeed, 0, len(feeds))
	for i := range feeds {
		if feeds[i].ReconciliationStatus == model.FeedStatusPending {
			fds = append(fds, &feeds[i])
		}
	}

	var candidates []candidate
	for _, tx := range txs {
		for _, feed := range fds {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
			if !m.eligible(tx, feed) {
				continue
			}
			candidates = append(candidates, candidate{
				tx:    tx,
				feed:  feed,
				score: m.Score(*tx, *feed),
				dist:  distance(tx, feed),
			})
		}
	}
	res.Candidates = len(candidates)

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.dist != b.dist {
			return a.dist < b.dist
		}
		if !a.tx.OccurredAt.Equal(b.tx.OccurredAt) {
			return a.tx.OccurredAt.Before(b.tx.OccurredAt)
		}
		if a.tx.ID != b.tx.ID {
			return a.tx.ID < b.tx.ID
		}
		return a.feed.ID < b.feed.ID
	})

	usedTx := make(map[string]bool)
	usedFeed := make(map[string]bool)
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if usedTx[c.tx.ID] || usedFeed[c.feed.ID] {
			continue
		}
		usedTx[c.tx.ID] = true
		usedFeed[c.feed.ID] = true

		match := Match{
			TransactionID: c.tx.ID,
			BankFeedID:    c.feed.ID,
			OwnerID:       c.tx.OwnerID,
			Score:         c.score,
			DateDistance:  c.dist,
		}
		if c.score >= m.cfg.AutoMatchThreshold {
			res.AutoMatches = append(res.AutoMatches, match)
			continue
		}
		res.LowConfidence = append(res.LowConfidence, match)
		res.ReviewTransactionIDs = append(res.ReviewTransactionIDs, c.tx.ID)
		res.ReviewFeedIDs = append(res.ReviewFeedIDs, c.feed.ID)
	}

	now := m.now()
	for _, tx := range txs {
		if usedTx[tx.ID] {
			continue
		}
		if m.cfg.ReviewGrace > 0 && now.Sub(tx.OccurredAt) < m.cfg.ReviewGrace {
			res.Deferred++
			continue
		}
		res.ReviewTransactionIDs = append(res.ReviewTransactionIDs, tx.ID)
	}
	for _, feed := range fds {
		if usedFeed[feed.ID] {
			continue
		}
		if m.cfg.ReviewGrace > 0 && now.Sub(feed.CreatedAt) < m.cfg.ReviewGrace {
			res.Deferred++
			continue
		}
		res.ReviewFeedIDs = append(res.ReviewFeedIDs, feed.ID)
	}

	return res, nil
}

// Eligible reports whether the pair may be matched automatically: same owner,
// same currency, amount within tolerance and dates within the window.
func (m *Matcher) Eligible(tx model.Transaction, feed model.BankFeed) bool {
	return m.eligible(&tx, &feed)
}

func (m *Matcher) eligible(tx *model.Transaction, feed *model.BankFeed) bool {
	if tx.OwnerID != feed.OwnerID {
		return false
	}
	if !strings.EqualFold(tx.Currency, feed.Currency) {
		return false
	}
	if tx.Amount.Sub(feed.Amount).Abs().GreaterThan(m.cfg.AmountTolerance) {
		return false
	}
	return distance(tx, feed) <= m.cfg.DateWindow
}

// Score rates how likely tx and feed describe the same movement, in [0, 100]
// rounded to two decimals. It does not check eligibility.
func (m *Matcher) Score(tx model.Transaction, feed model.BankFeed) float64 {
	w := m.cfg.Weights
	score := m.amountComponent(tx.Amount, feed.Amount)*w.Amount +
		m.dateComponent(distance(&tx, &feed))*w.Date +
		institutionComponent(tx.Institution, feed.Institution)*w.Institution

	score = math.Max(0, math.Min(100, score))
	return math.Round(score*100) / 100
}

func (m *Matcher) amountComponent(a, b decimal.Decimal) float64 {
	delta := a.Sub(b).Abs()
	if delta.IsZero() {
		return 100
	}
	if !m.cfg.AmountTolerance.IsPositive() {
		return 0
	}
	ratio, _ := delta.Div(m.cfg.AmountTolerance).Float64()
	return math.Max(0, 100*(1-ratio))
}

func (m *Matcher) dateComponent(dist time.Duration) float64 {
	if dist == 0 {
		return 100
	}
	if m.cfg.DateWindow <= 0 {
		return 0
	}
	return math.Max(0, 100*(1-float64(dist)/float64(m.cfg.DateWindow)))
}

func institutionComponent(a, b string) float64 {
	if strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b)) {
		return 100
	}
	return 50
}

func distance(tx *model.Transaction, feed *model.BankFeed) time.Duration {
	d := feed.ValueDate.Sub(tx.OccurredAt)
	if d < 0 {
		return -d
	}
	return d
}
