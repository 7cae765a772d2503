package strategy

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/alanyoungcy/paperbot/internal/domain"
)

// categoryKeywords classifies markets by title, first match wins.
var categoryKeywords = []struct {
	name     string
	keywords []string
}{
	{"Soccer", []string{"soccer", "la liga", "premier league", "champions league",
		"bundesliga", "serie a", "ligue 1", "copa", "euro", "fifa",
		"o/u", "over/under", "btts", "both teams", "mallorca",
		"barcelona", "real madrid", "chelsea", "arsenal", "liverpool",
		"manchester", "psg", "juventus", "inter", "milan", "ajax",
		"atletico", "dortmund", "porto", "celtic", "rangers"}},
	{"Basketball", []string{"nba", "basketball", "lakers", "celtics", "warriors",
		"bulls", "nets", "heat", "bucks", "76ers", "knicks"}},
	{"American Football", []string{"nfl", "super bowl", "touchdown", "quarterback",
		"patriots", "chiefs", "cowboys", "eagles", "rams"}},
	{"Baseball", []string{"mlb", "baseball", "world series", "yankees", "dodgers",
		"red sox", "cubs", "astros"}},
	{"MMA/Boxing", []string{"ufc", "boxing", "mma", "fight", "knockout", "championship bout"}},
	{"Politics", []string{"election", "president", "congress", "senate", "vote",
		"trump", "biden", "harris", "democrat", "republican",
		"governor", "mayor", "primary", "referendum", "ballot"}},
	{"Crypto", []string{"bitcoin", "btc", "ethereum", "eth", "crypto", "coin",
		"defi", "nft", "token", "price", "market cap"}},
}

// maxCategories caps the category breakdown.
const maxCategories = 8

func categorize(title string) string {
	t := strings.ToLower(title)
	for _, c := range categoryKeywords {
		for _, kw := range c.keywords {
			if strings.Contains(t, kw) {
				return c.name
			}
		}
	}
	return "Other"
}

// AnalyzeWallet summarizes a wallet's buying behaviour from its trade
// history. active and redeemable are the wallet's current holding counts.
func AnalyzeWallet(address string, trades []domain.WalletTrade, active, redeemable int, now time.Time) domain.WalletAnalysis {
	a := domain.WalletAnalysis{
		Address:         address,
		FetchedAt:       now,
		Trades:          len(trades),
		Categories:      map[string]int{},
		ActivePositions: active,
		RedeemableWins:  redeemable,
	}

	var sizes, prices []float64
	var stamps []time.Time
	for _, t := range trades {
		if t.Side != domain.TradeBuy {
			continue
		}
		a.BuyTrades++
		if t.USDCSize > 0 {
			sizes = append(sizes, t.USDCSize)
		}
		if t.Price > 0 {
			prices = append(prices, t.Price)
		}
		switch t.Outcome {
		case "No":
			a.Outcomes.NoCount++
		default:
			a.Outcomes.YesCount++
		}
		a.Categories[categorize(t.Title)]++
		if !t.Timestamp.IsZero() {
			stamps = append(stamps, t.Timestamp)
		}
	}
	a.SellTrades = a.Trades - a.BuyTrades

	if n := a.Outcomes.YesCount + a.Outcomes.NoCount; n > 0 {
		a.Outcomes.YesPct = round(float64(a.Outcomes.YesCount)/float64(n)*100, 1)
		a.Outcomes.NoPct = round(float64(a.Outcomes.NoCount)/float64(n)*100, 1)
	}
	a.Categories = topCategories(a.Categories)
	a.Sizing = sizingStats(sizes)
	a.Prices = priceStats(prices)
	a.Timing = timingStats(stamps, now)
	return a
}

func sizingStats(sizes []float64) *domain.SizingStats {
	if len(sizes) == 0 {
		return nil
	}
	sort.Float64s(sizes)
	st := &domain.SizingStats{
		Count:  len(sizes),
		Min:    round(sizes[0], 2),
		Max:    round(sizes[len(sizes)-1], 2),
		Median: round(median(sizes), 2),
		P25:    round(percentile(sizes, 25), 2),
		P75:    round(percentile(sizes, 75), 2),
		P95:    round(percentile(sizes, 95), 2),
		Buckets: map[string]int{
			"<$50": 0, "$50-100": 0, "$100-250": 0, "$250-500": 0, "$500+": 0,
		},
	}
	var total float64
	for _, s := range sizes {
		total += s
		switch {
		case s < 50:
			st.Buckets["<$50"]++
		case s < 100:
			st.Buckets["$50-100"]++
		case s < 250:
			st.Buckets["$100-250"]++
		case s < 500:
			st.Buckets["$250-500"]++
		default:
			st.Buckets["$500+"]++
		}
	}
	st.TotalUSDC = round(total, 2)
	st.Mean = round(total/float64(len(sizes)), 2)
	return st
}

func priceStats(prices []float64) *domain.PriceStats {
	if len(prices) == 0 {
		return nil
	}
	st := &domain.PriceStats{
		Buckets: map[string]int{
			"<30%": 0, "30-50%": 0, "50-70%": 0, "70-90%": 0, ">90%": 0,
		},
	}
	var total float64
	for _, p := range prices {
		total += p
		switch {
		case p < 0.30:
			st.Buckets["<30%"]++
		case p < 0.50:
			st.Buckets["30-50%"]++
		case p < 0.70:
			st.Buckets["50-70%"]++
		case p < 0.90:
			st.Buckets["70-90%"]++
		default:
			st.Buckets[">90%"]++
		}
	}
	sorted := append([]float64(nil), prices...)
	sort.Float64s(sorted)
	st.Mean = round(total/float64(len(prices)), 4)
	st.Median = round(median(sorted), 4)
	return st
}

func timingStats(stamps []time.Time, now time.Time) *domain.TimingStats {
	if len(stamps) == 0 {
		return nil
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })
	const day = 24 * time.Hour
	today := now.Unix() / int64(day/time.Second)
	perDay := map[int64]int{}
	st := &domain.TimingStats{
		FirstTrade: stamps[0],
		LastTrade:  stamps[len(stamps)-1],
	}
	for _, ts := range stamps {
		d := ts.Unix() / int64(day/time.Second)
		perDay[d]++
		if d >= today-30 {
			st.TradesLast30d++
		}
	}
	st.DaysWithTrades = len(perDay)
	for _, n := range perDay {
		st.MostActiveDayTrades = max(st.MostActiveDayTrades, n)
	}
	st.AvgTradesPerDay = round(float64(st.TradesLast30d)/30, 1)
	return st
}

// topCategories keeps the maxCategories largest counts, ties broken by name.
func topCategories(counts map[string]int) map[string]int {
	if len(counts) <= maxCategories {
		return counts
	}
	names := make([]string, 0, len(counts))
	for n := range counts {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	out := make(map[string]int, maxCategories)
	for _, n := range names[:maxCategories] {
		out[n] = counts[n]
	}
	return out
}

// percentile is the nearest-rank percentile of sorted.
func percentile(sorted []float64, pct float64) float64 {
	idx := int(math.Ceil(float64(len(sorted))*pct/100)) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
