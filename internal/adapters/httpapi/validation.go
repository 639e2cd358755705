package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"ordergate/internal/orders"
)

var skuPattern = regexp.MustCompile(`^[A-Z0-9_-]{3,32}$`)

type itemRequest struct {
	SKU      string `json:"sku" validate:"required,sku"`
	Quantity int    `json:"quantity" validate:"gt=0"`
}

type createOrderRequest struct {
	Items       []itemRequest `json:"items" validate:"required,dive"`
	AmountCents int64         `json:"amount_cents" validate:"gt=0"`
	Currency    string        `json:"currency" validate:"required,oneof=EUR USD GBP"`
}

func (r createOrderRequest) domainItems() []orders.Item {
	items := make([]orders.Item, len(r.Items))
	for i, item := range r.Items {
		items[i] = orders.Item{SKU: item.SKU, Quantity: item.Quantity}
	}
	return items
}

type listQuery struct {
	Page     int `json:"page" validate:"gte=1"`
	PageSize int `json:"page_size" validate:"gte=1,lte=100"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("sku", func(fl validator.FieldLevel) bool {
		return skuPattern.MatchString(fl.Field().String())
	})
	return v
}

// decodeCreateOrder parses and normalizes the body. SKU and currency are
// upper-cased before validation.
func decodeCreateOrder(v *validator.Validate, raw []byte) (createOrderRequest, []fieldError) {
	var req createOrderRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return req, []fieldError{decodeError(err)}
	}

	for i := range req.Items {
		req.Items[i].SKU = strings.ToUpper(strings.TrimSpace(req.Items[i].SKU))
	}
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))

	if err := v.Struct(req); err != nil {
		return req, fieldErrors(err)
	}
	return req, nil
}

func parseListQuery(v *validator.Validate, page, pageSize string) (listQuery, []fieldError) {
	q := listQuery{Page: 1, PageSize: 20}
	var errs []fieldError
	if page != "" {
		n, err := strconv.Atoi(page)
		if err != nil {
			errs = append(errs, fieldError{Field: "page", Message: "must be an integer"})
		}
		q.Page = n
	}
	if pageSize != "" {
		n, err := strconv.Atoi(pageSize)
		if err != nil {
			errs = append(errs, fieldError{Field: "page_size", Message: "must be an integer"})
		}
		q.PageSize = n
	}
	if len(errs) > 0 {
		return q, errs
	}
	if err := v.Struct(q); err != nil {
		return q, fieldErrors(err)
	}
	return q, nil
}

func decodeError(err error) fieldError {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			field = "body"
		}
		return fieldError{Field: field, Message: fmt.Sprintf("must be %s", typeErr.Type.String())}
	}
	return fieldError{Field: "body", Message: "malformed JSON"}
}

func fieldErrors(err error) []fieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []fieldError{{Field: "body", Message: err.Error()}}
	}
	out := make([]fieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, fieldError{Field: fieldPath(fe.Namespace()), Message: fieldMessage(fe)})
	}
	return out
}

// fieldPath drops the struct name validator puts in front of the namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "sku":
		return "invalid SKU format"
	case "oneof":
		return "unsupported value, expected one of: " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	default:
		return "failed " + fe.Tag() + " check"
	}
}
