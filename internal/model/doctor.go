package model

// Doctor is a registry entry used for speciality lookups; schedules and
// appointments reference doctors by id only.
type Doctor struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Email        string   `json:"email,omitempty"`
	Specialities []string `json:"specialities"`
}

type CreateDoctorRequest struct {
	Name         string   `json:"name" validate:"required"`
	Email        string   `json:"email" validate:"omitempty,email"`
	Specialities []string `json:"specialities"`
}
