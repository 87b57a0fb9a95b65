package condition

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	logger "github.com/sirupsen/logrus"

	"autotrader/src/model"
)

// Expression is the parsed form of a condition rule, kept as data so the
// scan loop never re-parses rule text per tick.
type Expression struct {
	Category   string
	Indicator  string // "RSI" or "MA<n>"; empty for bare price comparisons
	Comparator string // "<" or ">"
	Threshold  float64
	RightHand  string // second indicator for crossing forms ("MA5 > MA20")
}

// Rule pairs a stored condition with its compiled expression.
type Rule struct {
	Condition  model.Condition
	Expression Expression
}

var maPattern = regexp.MustCompile(`^MA(\d+)\s*([<>])\s*MA(\d+)$`)

// ParseExpression compiles one rule string. Supported forms, checked in this
// order: "RSI < 30" / "RSI > 70", "MA5 > MA20" / "MA5 < MA20", and bare price
// comparisons "< 50000" / "> 60000" with an optional label before the
// comparator.
func ParseExpression(category, value string) (Expression, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Expression{}, fmt.Errorf("empty condition value")
	}

	if category == model.ConditionCategoryRSI || strings.Contains(value, "RSI") {
		comparator, threshold, err := splitComparison(value)
		if err != nil {
			return Expression{}, fmt.Errorf("rsi condition %q: %w", value, err)
		}
		return Expression{
			Category:   model.ConditionCategoryRSI,
			Indicator:  model.IndicatorRSI,
			Comparator: comparator,
			Threshold:  threshold,
		}, nil
	}

	if category == model.ConditionCategoryMA || strings.Contains(value, "MA") {
		m := maPattern.FindStringSubmatch(strings.ReplaceAll(value, " ", ""))
		if m == nil {
			return Expression{}, fmt.Errorf("unsupported moving average condition %q", value)
		}
		return Expression{
			Category:   model.ConditionCategoryMA,
			Indicator:  "MA" + m[1],
			Comparator: m[2],
			RightHand:  "MA" + m[3],
		}, nil
	}

	comparator, threshold, err := splitComparison(value)
	if err != nil {
		return Expression{}, fmt.Errorf("price condition %q: %w", value, err)
	}
	return Expression{
		Category:   model.ConditionCategoryPrice,
		Comparator: comparator,
		Threshold:  threshold,
	}, nil
}

// splitComparison extracts the comparator and the numeric right-hand side.
// Text before the comparator (an indicator name or a label) is ignored here.
func splitComparison(value string) (string, float64, error) {
	var comparator string
	switch {
	case strings.Contains(value, "<"):
		comparator = "<"
	case strings.Contains(value, ">"):
		comparator = ">"
	default:
		return "", 0, fmt.Errorf("no comparator")
	}

	parts := strings.SplitN(value, comparator, 2)
	threshold, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return "", 0, fmt.Errorf("threshold: %w", err)
	}
	return comparator, threshold, nil
}

// CompileRule parses a stored condition into an evaluatable rule.
func CompileRule(cond model.Condition) (Rule, error) {
	expr, err := ParseExpression(cond.Category, cond.Value)
	if err != nil {
		return Rule{}, err
	}
	return Rule{Condition: cond, Expression: expr}, nil
}

// CompileRules compiles every condition it can and logs the rest. A malformed
// rule never fires; it does not abort the batch.
func CompileRules(conds []model.Condition) []Rule {
	rules := make([]Rule, 0, len(conds))
	for _, cond := range conds {
		rule, err := CompileRule(cond)
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"condition_id": cond.ID,
				"symbol":       cond.Symbol,
				"value":        cond.Value,
			}).WithError(err).Warn("Skipping condition with unsupported expression")
			continue
		}
		rules = append(rules, rule)
	}
	return rules
}

// Evaluate runs one compiled rule against a market snapshot. It is pure: a
// missing indicator or a comparison that does not hold yields nil, never an
// error.
//
// Direction gating follows the rule's stored direction. A price drop below
// the threshold only ever fires a buy; a price above the threshold fires the
// rule's own direction. RSI below fires buys, RSI above fires sells. Moving
// average crossings fire buys when the short average is on top and sells when
// it is underneath.
func Evaluate(rule Rule, snap *model.MarketSnapshot) *model.Signal {
	if snap == nil {
		return nil
	}

	expr := rule.Expression
	direction := rule.Condition.Direction

	var fired bool
	switch expr.Category {
	case model.ConditionCategoryRSI:
		rsi, ok := snap.Indicator(expr.Indicator)
		if !ok {
			return nil
		}
		if expr.Comparator == "<" {
			fired = rsi < expr.Threshold && direction == model.OrderSideBuy
		} else {
			fired = rsi > expr.Threshold && direction == model.OrderSideSell
		}

	case model.ConditionCategoryMA:
		left, okL := snap.Indicator(expr.Indicator)
		right, okR := snap.Indicator(expr.RightHand)
		if !okL || !okR {
			return nil
		}
		if expr.Comparator == ">" {
			fired = left > right && direction == model.OrderSideBuy
		} else {
			fired = left < right && direction == model.OrderSideSell
		}

	case model.ConditionCategoryPrice:
		if snap.Price <= 0 {
			return nil
		}
		if expr.Comparator == "<" {
			fired = snap.Price < expr.Threshold && direction == model.OrderSideBuy
		} else {
			fired = snap.Price > expr.Threshold &&
				(direction == model.OrderSideBuy || direction == model.OrderSideSell)
		}

	default:
		return nil
	}

	if !fired {
		return nil
	}

	signal := &model.Signal{
		Symbol:         rule.Condition.Symbol,
		Direction:      direction,
		ConditionID:    rule.Condition.ID,
		ConditionValue: rule.Condition.Value,
		Price:          snap.Price,
		Timestamp:      snap.Timestamp,
	}
	if rsi, ok := snap.Indicator(model.IndicatorRSI); ok {
		signal.IndicatorValue = &rsi
	}
	return signal
}
