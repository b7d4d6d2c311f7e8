package auth

// Permission names follow the RESOURCE-scoped ACTION_RESOURCE convention used
// by the document-management domain. The catalog is fixed: rows are seeded at
// startup and never mutated.
const (
	PermCreatePermission = "CREATE_PERMISSION"
	PermReadPermission   = "READ_PERMISSION"
	PermUpdatePermission = "UPDATE_PERMISSION"
	PermDeletePermission = "DELETE_PERMISSION"

	PermCreateRole = "CREATE_ROLE"
	PermReadRole   = "READ_ROLE"
	PermUpdateRole = "UPDATE_ROLE"
	PermDeleteRole = "DELETE_ROLE"

	PermCreateUser = "CREATE_USER"
	PermReadUser   = "READ_USER"
	PermUpdateUser = "UPDATE_USER"
	PermDeleteUser = "DELETE_USER"

	PermCreateRequisition = "CREATE_REQUISITION"
	PermReadRequisition   = "READ_REQUISITION"
	PermUpdateRequisition = "UPDATE_REQUISITION"
	PermDeleteRequisition = "DELETE_REQUISITION"

	PermCreateFiles = "CREATE_FILES"
	PermReadFiles   = "READ_FILES"
	PermUpdateFiles = "UPDATE_FILES"
	PermDeleteFiles = "DELETE_FILES"

	PermCreateFolders = "CREATE_FOLDERS"
	PermReadFolders   = "READ_FOLDERS"
	PermUpdateFolders = "UPDATE_FOLDERS"
	PermDeleteFolders = "DELETE_FOLDERS"

	PermCreateCaseStudies = "CREATE_CASESTUDIES"
	PermReadCaseStudies   = "READ_CASESTUDIES"
	PermUpdateCaseStudies = "UPDATE_CASESTUDIES"
	PermDeleteCaseStudies = "DELETE_CASESTUDIES"

	PermCreateRequests = "CREATE_REQUESTS"
	PermReadRequests   = "READ_REQUESTS"
	PermUpdateRequests = "UPDATE_REQUESTS"
	PermDeleteRequests = "DELETE_REQUESTS"

	PermCreateDepartments = "CREATE_DEPARTMENTS"
	PermReadDepartments   = "READ_DEPARTMENTS"
	PermUpdateDepartments = "UPDATE_DEPARTMENTS"
	PermDeleteDepartments = "DELETE_DEPARTMENTS"
)

// BuiltinPermissions is the full seeded catalog.
var BuiltinPermissions = []Permission{
	{Name: PermCreatePermission, Description: "Create permissions"},
	{Name: PermReadPermission, Description: "Read permissions"},
	{Name: PermUpdatePermission, Description: "Update permissions"},
	{Name: PermDeletePermission, Description: "Delete permissions"},

	{Name: PermCreateRole, Description: "Create roles"},
	{Name: PermReadRole, Description: "Read roles"},
	{Name: PermUpdateRole, Description: "Update roles"},
	{Name: PermDeleteRole, Description: "Delete roles"},

	{Name: PermCreateUser, Description: "Create users"},
	{Name: PermReadUser, Description: "Read users"},
	{Name: PermUpdateUser, Description: "Update users"},
	{Name: PermDeleteUser, Description: "Delete users"},

	{Name: PermCreateRequisition, Description: "Create requisitions"},
	{Name: PermReadRequisition, Description: "Read requisitions"},
	{Name: PermUpdateRequisition, Description: "Update requisitions"},
	{Name: PermDeleteRequisition, Description: "Delete requisitions"},

	{Name: PermCreateFiles, Description: "Create files"},
	{Name: PermReadFiles, Description: "Read files"},
	{Name: PermUpdateFiles, Description: "Update files"},
	{Name: PermDeleteFiles, Description: "Delete files"},

	{Name: PermCreateFolders, Description: "Create folders"},
	{Name: PermReadFolders, Description: "Read folders"},
	{Name: PermUpdateFolders, Description: "Update folders"},
	{Name: PermDeleteFolders, Description: "Delete folders"},

	{Name: PermCreateCaseStudies, Description: "Create case studies"},
	{Name: PermReadCaseStudies, Description: "Read case studies"},
	{Name: PermUpdateCaseStudies, Description: "Update case studies"},
	{Name: PermDeleteCaseStudies, Description: "Delete case studies"},

	{Name: PermCreateRequests, Description: "Create requests"},
	{Name: PermReadRequests, Description: "Read requests"},
	{Name: PermUpdateRequests, Description: "Update requests"},
	{Name: PermDeleteRequests, Description: "Delete requests"},

	{Name: PermCreateDepartments, Description: "Create departments"},
	{Name: PermReadDepartments, Description: "Read departments"},
	{Name: PermUpdateDepartments, Description: "Update departments"},
	{Name: PermDeleteDepartments, Description: "Delete departments"},
}

// KnownPermission reports whether name belongs to the builtin catalog.
func KnownPermission(name string) bool {
	for _, p := range BuiltinPermissions {
		if p.Name == name {
			return true
		}
	}
	return false
}
