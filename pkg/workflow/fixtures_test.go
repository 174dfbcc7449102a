package workflow

// sampleTree builds:
//
//	root
//	  s1 fetch (saveAs: ticket)
//	  if1 "Check Status"
//	    then: s2 "Send Email"
//	    else: loop1 (item)
//	            body: s3, tc1
//	                          try:   s4
//	                          catch: s5
//	  call1
//	  ret1
func sampleTree() Steps {
	return Steps{
		&NodeStep{ID: "s1", Type: NodeTypeActionCall, Name: "Fetch Ticket", Config: map[string]any{
			ConfigActionID: "tickets.get",
			ConfigSaveAs:   "ticket",
		}},
		&IfBlock{
			ID:        "if1",
			Name:      "Check Status",
			Condition: E("${vars.ticket.status}"),
			Then: Steps{
				&NodeStep{ID: "s2", Type: "email.send", Name: "Send Email"},
			},
			Else: Steps{
				&ForEachBlock{
					ID:      "loop1",
					Items:   E("${payload.items}"),
					ItemVar: "item",
					Body: Steps{
						&NodeStep{ID: "s3", Type: "transform.map"},
						&TryCatchBlock{
							ID:    "tc1",
							Try:   Steps{&NodeStep{ID: "s4", Type: "http.request"}},
							Catch: Steps{&NodeStep{ID: "s5", Type: "log.write"}},
						},
					},
				},
			},
		},
		&CallWorkflowBlock{ID: "call1", WorkflowID: "wf-child", InputMapping: map[string]Expr{"id": E("${vars.ticket.id}")}},
		&ReturnStep{ID: "ret1"},
	}
}

func sampleDefinition() *Definition {
	return &Definition{
		ID:               "wf-1",
		Version:          DefinitionVersion,
		Name:             "Ticket triage",
		PayloadSchemaRef: "payload.TicketPayload.v1",
		Steps:            sampleTree(),
	}
}
