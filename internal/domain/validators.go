package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	playerNameRegex = regexp.MustCompile(`^[A-Za-z0-9_]{1,16}$`)
	publicIDRegex   = regexp.MustCompile(`^[A-Z0-9]{6}$`)
)

// validate is the shared validator instance with the custom tags registered.
var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("playername", func(fl validator.FieldLevel) bool {
		return playerNameRegex.MatchString(fl.Field().String())
	})
	_ = validate.RegisterValidation("publicid", func(fl validator.FieldLevel) bool {
		return publicIDRegex.MatchString(fl.Field().String())
	})
}

// ValidateStruct runs tag validation and converts failures to a VALIDATION_ERROR.
func ValidateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return ErrValidation(err.Error())
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return ErrValidation(strings.Join(msgs, "; "))
}

// ValidatePlayerName checks a display name against the game's name rules.
func ValidatePlayerName(name string) error {
	if name == "" {
		return fmt.Errorf("player name is required")
	}
	if !playerNameRegex.MatchString(name) {
		return fmt.Errorf("invalid player name: %s", name)
	}
	return nil
}

// ValidatePublicID checks a punishment code is six uppercase alphanumerics.
func ValidatePublicID(id string) error {
	if !publicIDRegex.MatchString(id) {
		return fmt.Errorf("invalid punishment id: %s", id)
	}
	return nil
}
