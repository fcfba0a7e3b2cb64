package auth

import "github.com/PhilHem/gamepanel/backend/validation"

type loginForm struct {
	Email    string `form:"email" validate:"required,email"`
	Password string `form:"password" validate:"required"`
}

type challengeForm struct {
	Code string `form:"code" validate:"required,digits=6"`
}

type enableForm struct {
	Password string `form:"password" validate:"required"`
	Code     string `form:"code" validate:"required,digits=6"`
}

type disableForm struct {
	Password string `form:"password" validate:"required"`
}

// checkForm reports the first failing field of form as ErrValidation.
func checkForm(form any) error {
	if errs := validation.Check(form); len(errs) > 0 {
		return fieldErr(errs[0].Field, errs[0].Message, ErrValidation)
	}
	return nil
}
