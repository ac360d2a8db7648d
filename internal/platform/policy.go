package platform

// SynthesizeAccess builds the access rule for a role-gated room. The
// join role wins over the required role for the connect grant. With
// neither role set the room is default-open and no overwrites are
// produced. Whenever a role gate exists the bot user keeps connect and
// manage rights so it can keep running the lifecycle.
func SynthesizeAccess(requiredRoleID, joinRoleID *string, botUserID string) []Overwrite {
	roleID := ""
	if joinRoleID != nil && *joinRoleID != "" {
		roleID = *joinRoleID
	} else if requiredRoleID != nil && *requiredRoleID != "" {
		roleID = *requiredRoleID
	}

	if roleID == "" {
		return nil
	}

	return []Overwrite{
		{
			Target: TargetEveryone,
			Deny:   PermConnect,
		},
		{
			Target:   TargetRole,
			TargetID: roleID,
			Allow:    PermConnect,
		},
		{
			Target:   TargetMember,
			TargetID: botUserID,
			Allow:    PermConnect | PermManageRoom,
		},
	}
}
