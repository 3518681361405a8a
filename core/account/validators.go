package account

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/homeroom/core"
	"github.com/trezcool/homeroom/core/tenancy"
)

var (
	tenantRoleTag  = "tenantrole"
	tenantRoleText = "must be one of: " + tenancy.JoinRoles(tenancy.TenantRoles)

	platformRoleTag  = "platformrole"
	platformRoleText = "must be one of: " + tenancy.JoinRoles(tenancy.PlatformRoles)

	appRoleTag  = "approle"
	appRoleText = "invalid role"
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(tenantRoleTag, tenantRoleValidation)
	core.RegisterCustomTranslation(validate, translator, tenantRoleTag, tenantRoleText)

	_ = validate.RegisterValidation(platformRoleTag, platformRoleValidation)
	core.RegisterCustomTranslation(validate, translator, platformRoleTag, platformRoleText)

	_ = validate.RegisterValidation(appRoleTag, appRoleValidation)
	core.RegisterCustomTranslation(validate, translator, appRoleTag, appRoleText)
}

// Custom Validators

func tenantRoleValidation(fl validator.FieldLevel) bool {
	role, ok := tenancy.ParseRole(fl.Field().String())
	return ok && !role.IsPlatform()
}

func platformRoleValidation(fl validator.FieldLevel) bool {
	return tenancy.Role(fl.Field().String()).IsPlatform()
}

func appRoleValidation(fl validator.FieldLevel) bool {
	_, ok := tenancy.ParseRole(fl.Field().String())
	return ok
}
