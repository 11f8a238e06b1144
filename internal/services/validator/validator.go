package validator

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"MarketPulse/internal/domain/models"
)

const (
	maxPointAge   = 7 * 24 * time.Hour
	maxClockSkew  = time.Hour
	subjectPoint  = "market point"
	subjectIndSet = "indicator set"
)

// Validator checks market points and indicator sets before they enter the pipeline.
type Validator struct {
	v   *validator.Validate
	now func() time.Time
}

// Option configures Validator.
type Option func(*Validator)

// WithClock overrides the clock used for the timestamp window.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		if now != nil {
			v.now = now
		}
	}
}

func New(opts ...Option) *Validator {
	out := &Validator{v: validator.New(), now: time.Now}
	for _, o := range opts {
		o(out)
	}
	out.v.RegisterStructValidation(out.pointRules, models.MarketPoint{})
	out.v.RegisterStructValidation(indicatorRules, models.IndicatorSet{})
	return out
}

// ValidatePoint returns a *models.ValidationError listing every violated rule, or nil.
func (v *Validator) ValidatePoint(p *models.MarketPoint) error {
	if p == nil {
		return &models.ValidationError{Subject: subjectPoint, Violations: []string{"point is nil"}}
	}
	return v.check(subjectPoint+" "+p.Symbol, p)
}

// ValidateIndicators applies the indicator sanity rules.
func (v *Validator) ValidateIndicators(set *models.IndicatorSet) error {
	if set == nil {
		return nil
	}
	return v.check(subjectIndSet, set)
}

func (v *Validator) check(subject string, s interface{}) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &models.ValidationError{Subject: subject, Violations: []string{err.Error()}}
	}
	out := &models.ValidationError{Subject: subject}
	for _, fe := range fieldErrs {
		out.Violations = append(out.Violations, describe(fe))
	}
	return out
}

func describe(fe validator.FieldError) string {
	if fe.Param() != "" {
		return fmt.Sprintf("%s %s %s (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value())
	}
	return fmt.Sprintf("%s %s (got %v)", fe.Field(), fe.Tag(), fe.Value())
}

func (v *Validator) pointRules(sl validator.StructLevel) {
	p := sl.Current().Interface().(models.MarketPoint)

	now := v.now()
	if !p.Timestamp.After(now.Add(-maxPointAge)) || p.Timestamp.After(now.Add(maxClockSkew)) {
		sl.ReportError(p.Timestamp, "timestamp", "Timestamp", "window", "")
	}

	if p.High != nil && p.Low != nil && *p.Low > *p.High {
		sl.ReportError(*p.Low, "low", "Low", "lte_high", "")
	}
	if !p.HasOHLC() {
		return
	}
	lo, hi := *p.Low, *p.High
	if *p.Open < lo || *p.Open > hi {
		sl.ReportError(*p.Open, "open", "Open", "within_range", "")
	}
	if *p.Close < lo || *p.Close > hi {
		sl.ReportError(*p.Close, "close", "Close", "within_range", "")
	}
}

func indicatorRules(sl validator.StructLevel) {
	s := sl.Current().Interface().(models.IndicatorSet)
	if s.BollingerLower != nil && s.BollingerMiddle != nil && *s.BollingerLower > *s.BollingerMiddle {
		sl.ReportError(*s.BollingerLower, "bollingerLower", "BollingerLower", "lte_middle", "")
	}
	if s.BollingerMiddle != nil && s.BollingerUpper != nil && *s.BollingerMiddle > *s.BollingerUpper {
		sl.ReportError(*s.BollingerUpper, "bollingerUpper", "BollingerUpper", "gte_middle", "")
	}
}
