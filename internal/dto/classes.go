package dto

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/tutorclass-api/internal/models"
)

// CreateClassRequest schedules a class. Regular and Premium classes take one
// student in student_name; Group classes may list several in student_names.
type CreateClassRequest struct {
	TeacherID    string   `json:"teacher_id" validate:"required"`
	StudentName  string   `json:"student_name" validate:"omitempty,max=120"`
	StudentNames []string `json:"student_names" validate:"omitempty,dive,max=120"`
	ClassType    string   `json:"class_type" validate:"required,class_type"`
	Schedule     string   `json:"schedule" validate:"required,class_date"`
	Time         string   `json:"time" validate:"required,class_time"`
	Status       string   `json:"status" validate:"omitempty,class_status"`
	Notes        *string  `json:"notes" validate:"omitempty,max=1000"`
}

// Names merges student_name and student_names in submission order.
func (r CreateClassRequest) Names() []string {
	names := make([]string, 0, len(r.StudentNames)+1)
	if strings.TrimSpace(r.StudentName) != "" {
		names = append(names, r.StudentName)
	}
	return append(names, r.StudentNames...)
}

// UpdateClassRequest replaces the editable fields of a class.
type UpdateClassRequest struct {
	TeacherID   string  `json:"teacher_id" validate:"required"`
	StudentName string  `json:"student_name" validate:"required,max=120"`
	ClassType   string  `json:"class_type" validate:"required,class_type"`
	Schedule    string  `json:"schedule" validate:"required,class_date"`
	Time        string  `json:"time" validate:"required,class_time"`
	Status      string  `json:"status" validate:"required,class_status"`
	Notes       *string `json:"notes" validate:"omitempty,max=1000"`
}

// UpdateClassStatusRequest carries a status change from an admin or teacher.
type UpdateClassStatusRequest struct {
	Status string `json:"status" validate:"required,class_status"`
}

// UsedCountResponse reports consumed classes of one type.
type UsedCountResponse struct {
	StudentID   string           `json:"student_id"`
	StudentName string           `json:"student_name"`
	ClassType   models.ClassType `json:"class_type"`
	Used        int              `json:"used"`
}

// SlotOccupantsResponse lists the classes in one slot.
type SlotOccupantsResponse struct {
	Slot      models.SlotKey         `json:"slot"`
	Occupants []models.ClassInstance `json:"occupants"`
	Shared    bool                   `json:"shared"`
}

// RegisterValidations installs the class_type, class_status, class_date and
// class_time tags on v.
func RegisterValidations(v *validator.Validate) error {
	rules := map[string]validator.Func{
		"class_type": func(fl validator.FieldLevel) bool {
			_, ok := models.ParseClassType(fl.Field().String())
			return ok
		},
		"class_status": func(fl validator.FieldLevel) bool {
			_, ok := models.ParseClassStatus(fl.Field().String())
			return ok
		},
		"class_date": func(fl validator.FieldLevel) bool {
			_, err := models.ParseClassDate(fl.Field().String())
			return err == nil
		},
		"class_time": func(fl validator.FieldLevel) bool {
			_, err := models.ParseClassTime(fl.Field().String())
			return err == nil
		},
	}
	for tag, fn := range rules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return err
		}
	}
	return nil
}

// NewValidator returns a validator with the class rules registered.
func NewValidator() *validator.Validate {
	v := validator.New()
	if err := RegisterValidations(v); err != nil {
		panic(err)
	}
	return v
}
