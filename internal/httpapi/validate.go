package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"civreg.org/internal/auth"
	"civreg.org/internal/registry"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeAndValidate reads a JSON body into dst and checks its struct tags.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) error {
	if err := decodeJSON(w, r, dst); err != nil {
		return err
	}
	return validateStruct(dst)
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describeFieldError(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), lengthOrValue(fe))
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), lengthOrValue(fe))
	case "gte":
		return fmt.Sprintf("%s must be >= %s", fe.Field(), fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be <= %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}

func lengthOrValue(fe validator.FieldError) string {
	if fe.Kind() == reflect.String {
		return fe.Param() + " characters"
	}
	return fe.Param()
}

// --- request DTOs ---

type loginRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Password string `json:"password" validate:"required,min=6,max=100"`
}

type registerRequest struct {
	Username   string `json:"username" validate:"required,min=3,max=50"`
	Password   string `json:"password" validate:"required,min=6,max=100"`
	FullName   string `json:"fullName" validate:"max=100"`
	ProvinceID *int   `json:"provinceId" validate:"omitempty,gte=1"`
	DistrictID *int   `json:"districtId" validate:"omitempty,gte=1"`
	WardID     *int   `json:"wardId" validate:"omitempty,gte=1"`
}

type createUserRequest struct {
	Username   string `json:"username" validate:"required,min=3,max=50"`
	Password   string `json:"password" validate:"required,min=6,max=100"`
	FullName   string `json:"fullName" validate:"max=100"`
	Role       string `json:"role" validate:"required"`
	ProvinceID *int   `json:"provinceId" validate:"omitempty,gte=1"`
	DistrictID *int   `json:"districtId" validate:"omitempty,gte=1"`
	WardID     *int   `json:"wardId" validate:"omitempty,gte=1"`
}

type updateUserRequest struct {
	FullName   string `json:"fullName" validate:"max=100"`
	Role       string `json:"role"`
	ProvinceID *int   `json:"provinceId" validate:"omitempty,gte=1"`
	DistrictID *int   `json:"districtId" validate:"omitempty,gte=1"`
	WardID     *int   `json:"wardId" validate:"omitempty,gte=1"`
}

type resetPasswordRequest struct {
	Password string `json:"password" validate:"required,min=6,max=100"`
}

type createHouseholdRequest struct {
	HouseholdCode string `json:"householdCode" validate:"required,max=50"`
	HeadName      string `json:"headName" validate:"required,max=100"`
	Address       string `json:"address" validate:"max=255"`
	ProvinceID    *int   `json:"provinceId" validate:"omitempty,gte=1"`
	DistrictID    *int   `json:"districtId" validate:"omitempty,gte=1"`
	WardID        *int   `json:"wardId" validate:"omitempty,gte=1"`
	HamletID      *int   `json:"hamletId" validate:"omitempty,gte=1"`
}

// updateHouseholdRequest fields are optional; empty values keep the stored ones.
type updateHouseholdRequest struct {
	HouseholdCode string `json:"householdCode" validate:"max=50"`
	HeadName      string `json:"headName" validate:"max=100"`
	Address       string `json:"address" validate:"max=500"`
	HamletID      *int   `json:"hamletId" validate:"omitempty,gte=1"`
}

type submitRequestRequest struct {
	RequestType *int   `json:"requestType" validate:"required,gte=0,lte=9"`
	Content     string `json:"content" validate:"max=2000"`
}

// listParams are the paging and unit query parameters shared by listings.
type listParams struct {
	Page       int `validate:"gte=1,lte=1000000"`
	PageSize   int `validate:"gte=1,lte=100"`
	ProvinceID *int
	DistrictID *int
	WardID     *int
	HamletID   *int
}

func parseListParams(q url.Values) (listParams, error) {
	p := listParams{Page: 1, PageSize: auth.DefaultPageSize}
	var err error
	if p.Page, err = queryInt(q, "page", p.Page); err != nil {
		return p, err
	}
	if p.PageSize, err = queryInt(q, "pageSize", p.PageSize); err != nil {
		return p, err
	}
	for name, dst := range map[string]**int{
		"provinceId": &p.ProvinceID,
		"districtId": &p.DistrictID,
		"wardId":     &p.WardID,
		"hamletId":   &p.HamletID,
	} {
		if *dst, err = queryOptionalInt(q, name); err != nil {
			return p, err
		}
	}
	if err := validate.Struct(p); err != nil {
		return p, errors.New("page must be between 1 and 1000000 and pageSize between 1 and 100")
	}
	return p, nil
}

func (p listParams) page() auth.Page {
	return auth.Page{Number: p.Page, Size: p.PageSize}
}

func (p listParams) filter() registry.Filter {
	return registry.Filter{
		ProvinceID: p.ProvinceID,
		DistrictID: p.DistrictID,
		WardID:     p.WardID,
		HamletID:   p.HamletID,
	}
}

func queryInt(q url.Values, name string, def int) (int, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return v, nil
}

func queryOptionalInt(q url.Values, name string) (*int, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be an integer", name)
	}
	return &v, nil
}

// --- response views ---

type identityView struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	Role       auth.Role `json:"role"`
	ProvinceID *int      `json:"provinceId,omitempty"`
	DistrictID *int      `json:"districtId,omitempty"`
	WardID     *int      `json:"wardId,omitempty"`
}

func viewIdentity(id auth.Identity) identityView {
	return identityView{
		ID:         id.ID,
		Username:   id.Username,
		Role:       id.Role,
		ProvinceID: id.ProvinceID,
		DistrictID: id.DistrictID,
		WardID:     id.WardID,
	}
}

type userView struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	FullName   string    `json:"fullName"`
	Role       auth.Role `json:"role"`
	ProvinceID *int      `json:"provinceId,omitempty"`
	DistrictID *int      `json:"districtId,omitempty"`
	WardID     *int      `json:"wardId,omitempty"`
	IsActive   bool      `json:"isActive"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func viewUser(u *auth.User) userView {
	return userView{
		ID:         u.ID,
		Username:   u.Username,
		FullName:   u.FullName,
		Role:       u.Role,
		ProvinceID: u.ProvinceID,
		DistrictID: u.DistrictID,
		WardID:     u.WardID,
		IsActive:   u.IsActive,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

type sessionView struct {
	Token     string       `json:"token"`
	TokenType string       `json:"tokenType"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      identityView `json:"user"`
}

func viewSession(s auth.Session) sessionView {
	return sessionView{
		Token:     s.Token,
		TokenType: "Bearer",
		ExpiresAt: s.ExpiresAt,
		User:      viewIdentity(s.Identity),
	}
}

type pageView[T any] struct {
	Items      []T             `json:"items"`
	Pagination auth.Pagination `json:"pagination"`
}
