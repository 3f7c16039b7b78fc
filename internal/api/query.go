package api

import (
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"github.com/lox/brentwatch/internal/models"
)

var validate = validator.New()

// reportQuery selects the interval and forecast window of a report. Empty
// dates fall back to the server defaults.
type reportQuery struct {
	Start  string `query:"start" validate:"omitempty,datetime=2006-01-02"`
	End    string `query:"end" validate:"omitempty,datetime=2006-01-02"`
	Cutoff string `query:"cutoff" validate:"omitempty,datetime=2006-01-02"`
	Target string `query:"target" validate:"omitempty,datetime=2006-01-02"`
}

// pricesQuery pages through the stored series within an interval.
type pricesQuery struct {
	Start  string `query:"start" validate:"omitempty,datetime=2006-01-02"`
	End    string `query:"end" validate:"omitempty,datetime=2006-01-02"`
	Limit  int `query:"limit" default:"1000" validate:"min=1,max=10000"`
	Offset int `query:"offset" default:"0" validate:"min=0"`
}

type runsQuery struct {
	Limit int `query:"limit" default:"20" validate:"min=1,max=500"`
}

// bindQuery copies url values into the query-tagged fields of dst, applies
// default tags and validates the result.
func bindQuery(values url.Values, dst any) error {
	if err := defaults.Set(dst); err != nil {
		return fmt.Errorf("set defaults: %w", err)
	}

	v := reflect.ValueOf(dst).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		name := t.Field(i).Tag.Get("query")
		if name == "" || !values.Has(name) {
			continue
		}
		raw := strings.TrimSpace(values.Get(name))
		field := v.Field(i)
		switch field.Kind() {
		case reflect.String:
			field.SetString(raw)
		case reflect.Int:
			n, err := strconv.Atoi(raw)
			if err != nil {
				return fmt.Errorf("%s: not a number", name)
			}
			field.SetInt(int64(n))
		}
	}

	if err := validate.Struct(dst); err != nil {
		return formatValidation(err)
	}
	return nil
}

func formatValidation(err error) error {
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(errs))
	for _, fe := range errs {
		switch fe.Tag() {
		case "datetime":
			msgs = append(msgs, fmt.Sprintf("%s must be a date (YYYY-MM-DD)", strings.ToLower(fe.Field())))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", strings.ToLower(fe.Field()), fe.Tag(), fe.Param()))
		}
	}
	return fmt.Errorf("invalid query: %s", strings.Join(msgs, "; "))
}

// dateOr parses s, falling back to def when s is empty. s has already
// passed validation.
func dateOr(s string, def time.Time) time.Time {
	if s == "" {
		return def
	}
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		return def
	}
	return t
}

// encode returns the non-empty fields as a query string suffix for links.
func (q reportQuery) encode() string {
	v := url.Values{}
	for k, s := range map[string]string{"start": q.Start, "end": q.End, "cutoff": q.Cutoff, "target": q.Target} {
		if s != "" {
			v.Set(k, s)
		}
	}
	if len(v) == 0 {
		return ""
	}
	return "?" + v.Encode()
}
