package ranking

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/helixir/citation-network-service/internal/domain"
)

// NewValidator returns a validator that reports JSON field names.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// ValidateCriteria checks struct-level constraints and cross-field rules.
// The first violation is returned as a *domain.ConfigurationError.
func ValidateCriteria(v *validator.Validate, c domain.RankingCriteria) error {
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return domain.NewConfigurationError(fieldPath(fe), describe(fe))
		}
		return domain.NewConfigurationError("criteria", err.Error())
	}

	if c.YearFrom > 0 && c.YearTo > 0 && c.YearFrom > c.YearTo {
		return domain.NewConfigurationError("year_from", "must not be after year_to")
	}
	if c.MinSimilarity != nil && c.MaxSimilarity != nil && *c.MinSimilarity > *c.MaxSimilarity {
		return domain.NewConfigurationError("min_similarity", "must not exceed max_similarity")
	}
	for _, d := range c.AllowedDomains {
		if containsFold(c.DeniedDomains, d) {
			return domain.NewConfigurationError("allowed_domains", "domain "+d+" is also denied")
		}
	}
	return nil
}

// fieldPath drops the root struct name from the validator namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gte":
		return "must be >= " + fe.Param()
	case "lte":
		return "must be <= " + fe.Param()
	case "required":
		return "must not be empty"
	default:
		return "failed " + fe.Tag() + " check"
	}
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(s)) {
			return true
		}
	}
	return false
}

// passes applies every filter in c to one candidate. similarity is only
// consulted when hasReference is true.
func passes(c domain.RankingCriteria, cand Candidate, similarity float64, hasReference bool) bool {
	if hasReference {
		if c.MinSimilarity != nil && similarity < *c.MinSimilarity {
			return false
		}
		if c.MaxSimilarity != nil && similarity > *c.MaxSimilarity {
			return false
		}
	}
	if len(c.AllowedDomains) > 0 && !containsFold(c.AllowedDomains, cand.Domain) {
		return false
	}
	if cand.Domain != "" && containsFold(c.DeniedDomains, cand.Domain) {
		return false
	}
	if cand.Record.CitationCount < c.MinCitations {
		return false
	}
	if cand.VenueQuality < c.MinVenueQuality {
		return false
	}
	if c.YearFrom > 0 || c.YearTo > 0 {
		year := cand.Record.Year
		if year == 0 {
			return false
		}
		if c.YearFrom > 0 && year < c.YearFrom {
			return false
		}
		if c.YearTo > 0 && year > c.YearTo {
			return false
		}
	}
	if len(c.Methodologies) > 0 {
		shared := false
		for _, m := range cand.Methodologies {
			if containsFold(c.Methodologies, m) {
				shared = true
				break
			}
		}
		if !shared {
			return false
		}
	}
	return true
}
