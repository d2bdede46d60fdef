package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/arsia/internal/model"
)

// maxJSONBodySize はJSONリクエストボディの上限バイト数。
const maxJSONBodySize = 64 << 10

// requestValidator はvalidator/v10をラップし、検証エラーをAPIErrorに変換する。
type requestValidator struct {
	v *validator.Validate
}

// newRequestValidator はJSONタグ名をフィールド名として使うバリデーターを生成する。
func newRequestValidator() *requestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return &requestValidator{v: v}
}

// decode はJSONボディを読み込み、構造体タグで検証する。
func (rv *requestValidator) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return model.NewValidationError("Corps de requête JSON invalide")
	}
	return rv.validate(dst)
}

// validate は構造体を検証し、最初の違反をフランス語のメッセージにする。
func (rv *requestValidator) validate(s any) error {
	err := rv.v.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return model.NewValidationError("Requête invalide")
	}
	return model.NewValidationError(friendlyMessage(fieldErrs[0]))
}

func friendlyMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		if e.Field() == "email" || e.Field() == "password" {
			return "Email et mot de passe requis"
		}
		return fmt.Sprintf("Le champ %s est requis", e.Field())
	case "email":
		return "Email invalide"
	case "min":
		if e.Field() == "password" {
			return fmt.Sprintf("Le mot de passe doit contenir au moins %s caractères", e.Param())
		}
		return fmt.Sprintf("Le champ %s doit contenir au moins %s caractères", e.Field(), e.Param())
	case "max":
		return fmt.Sprintf("Le champ %s ne doit pas dépasser %s caractères", e.Field(), e.Param())
	default:
		return fmt.Sprintf("Le champ %s est invalide", e.Field())
	}
}
