// Package audit provides an audit trail for authorization decisions
// and role administration.
//
// # Overview
//
// Every denied access check and every role/permission mutation produces
// an Event. Events are written through the Logger interface; DBLogger
// persists them to the audit_events table, NopLogger discards them.
//
// # Logging Events
//
// Create a database-backed logger:
//
//	auditLog, err := audit.NewDBLogger(db)
//	if err != nil {
//	    return err
//	}
//	defer auditLog.Close()
//
// Record an event:
//
//	event := audit.NewEvent(audit.EventTypeRoleCreate, audit.StatusSuccess)
//	event.OrganizationID = orgID
//	event.RoleID = role.ID
//	auditLog.Log(ctx, event)
//
// # Searching
//
// DBLogger supports filtered queries for investigation:
//
//	events, err := auditLog.Search(ctx, audit.SearchFilter{
//	    OrganizationID: orgID,
//	    EventTypes:     []audit.EventType{audit.EventTypeAccessDenied},
//	    Limit:          50,
//	})
//
// # Retention
//
// Old events are removed by Prune, typically driven by a scheduled
// sweep using DefaultRetentionPolicy:
//
//	pruned, err := auditLog.Prune(ctx, time.Now().AddDate(0, 0, -90))
package audit
