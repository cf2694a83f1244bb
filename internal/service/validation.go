package service

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"bengkelku/internal/domain"
	"bengkelku/internal/models"

	"github.com/go-playground/validator/v10"
)

var (
	validate = newValidator()

	timeSlotPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d-([01]\d|2[0-3]):[0-5]\d$`)
	otpPattern      = regexp.MustCompile(`^\d{6}$`)
)

func newValidator() *validator.Validate {
	v := validator.New()

	// ошибки возвращаются с json-именами полей
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	_ = v.RegisterValidation("timeslot", func(fl validator.FieldLevel) bool {
		slot := fl.Field().String()
		if !timeSlotPattern.MatchString(slot) {
			return false
		}
		return slot[:5] < slot[6:]
	})

	_ = v.RegisterValidation("vehicletype", func(fl validator.FieldLevel) bool {
		t := strings.ToLower(fl.Field().String())
		return t == models.VehicleTypeMotor || t == models.VehicleTypeMobil
	})

	return v
}

// validateStruct runs the struct tags of v and maps failures to a domain.ValidationError.
func validateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return &domain.ValidationError{Fields: fields}
}

func validateOTP(code string) error {
	if !otpPattern.MatchString(code) {
		return domain.NewValidationError("otp", "len")
	}
	return nil
}
