package auth

// Resources and actions protected operations declare. ADMIN's full access is
// achieved by granting it every builtin at provisioning time; the enforcer
// itself has no role special cases.
const (
	ResourceTasks      = "tasks"
	ResourceTimesheets = "timesheets"
	ResourceExpenses   = "expenses"
	ResourceReceipts   = "receipts"
	ResourceReports    = "reports"
	ResourceAudit      = "audit"
	ResourceLifecycle  = "lifecycle"
	ResourceUsers      = "users"
	ResourceRoles      = "roles"

	ActionRead    = "read"
	ActionWrite   = "write"
	ActionApprove = "approve"
	ActionRun     = "run"
	ActionManage  = "manage"
)

// BuiltinPermissions is the permission catalog ensured at startup.
var BuiltinPermissions = []Permission{
	{Resource: ResourceTasks, Action: ActionRead, Description: "View tasks"},
	{Resource: ResourceTasks, Action: ActionWrite, Description: "Create and edit tasks"},
	{Resource: ResourceTimesheets, Action: ActionRead, Description: "View time entries"},
	{Resource: ResourceTimesheets, Action: ActionWrite, Description: "Record time entries"},
	{Resource: ResourceExpenses, Action: ActionRead, Description: "View expenses"},
	{Resource: ResourceExpenses, Action: ActionWrite, Description: "Submit expenses"},
	{Resource: ResourceExpenses, Action: ActionApprove, Description: "Approve submitted expenses"},
	{Resource: ResourceReceipts, Action: ActionWrite, Description: "Upload expense receipts"},
	{Resource: ResourceReports, Action: ActionRead, Description: "View reports"},
	{Resource: ResourceAudit, Action: ActionRead, Description: "Read the login audit log"},
	{Resource: ResourceLifecycle, Action: ActionRun, Description: "Trigger the password lifecycle scan"},
	{Resource: ResourceUsers, Action: ActionManage, Description: "Manage user accounts"},
	{Resource: ResourceRoles, Action: ActionManage, Description: "Manage roles and their permissions"},
}
