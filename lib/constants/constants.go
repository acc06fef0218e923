package constants

// SSM parameter names, resolved under the /agentdms path at cold start
const (
	ALLOWED_ORIGINS        = "/agentdms/ALLOWED_ORIGINS"
	DATABASE_RDS_PROXY_URL = "/agentdms/DATABASE_RDS_PROXY_URL"
	DATABASE_RDS_ENDPOINT  = "/agentdms/DATABASE_RDS_ENDPOINT"
	DATABASE_PORT          = "/agentdms/DATABASE_PORT"
	DATABASE_NAME          = "/agentdms/DATABASE_NAME"
	DATABASE_USERNAME      = "/agentdms/DATABASE_USERNAME"
	DATABASE_PASSWORD      = "/agentdms/DATABASE_PASSWORD"
	SSL_MODE               = "/agentdms/SSL_MODE"
	COGNITO_USER_POOL_ID   = "/agentdms/COGNITO_USER_POOL_ID"
	DOCUMENT_BUCKET        = "/agentdms/DOCUMENT_BUCKET"
	SSM_PARAMETER_PATH     = "/agentdms"
	DRIVER_NAME            = "postgres"
)

// Well-known permission names. Permission names are compared by exact,
// case-sensitive equality.
const (
	PermissionWorkspaceAdmin   = "workspace.admin"
	PermissionDocumentView     = "document.view"
	PermissionDocumentEdit     = "document.edit"
	PermissionDocumentDelete   = "document.delete"
	PermissionDocumentPrint    = "document.print"
	PermissionDocumentAnnotate = "document.annotate"
)
