package fixture

// Registry is a catalog bundle with one action, two node types, two
// events and their payload schemas.
const Registry = `nodes:
  - id: action.call
  - id: log.write
    configSchema:
      type: object
      properties:
        message: {type: string}
actions:
  - id: tickets.get
    version: 1
    outputSchema:
      type: object
      properties:
        id: {type: string}
        status: {type: string, enum: [open, closed]}
events:
  - eventType: ticket.created
    payloadSchemaRef: payload.Ticket.v1
    payloadSchemaRefStatus: known
  - eventType: order.placed
    payloadSchemaRef: payload.Order.v1
    payloadSchemaRefStatus: known
schemas:
  payload.Ticket.v1:
    type: object
    required: [id]
    properties:
      id: {type: string, description: Ticket id}
      priority: {type: integer, minimum: 1, maximum: 5}
      tags:
        type: array
        items: {type: string}
  payload.Order.v1:
    type: object
    properties:
      orderId: {type: string}
`

// TicketRef is the payload schema ref of the ticket.created event.
const TicketRef = "payload.Ticket.v1"

// ValidDefinition passes validation against Registry.
const ValidDefinition = `id: triage
name: Ticket triage
payloadSchemaRef: payload.Ticket.v1
steps:
  - id: fetch
    type: action.call
    config:
      actionId: tickets.get
      saveAs: ticket
  - id: check
    type: control.if
    condition: {$expr: "${vars.ticket.status}"}
    then:
      - id: note
        type: log.write
        config:
          message: "ticket ${payload.id} is ${vars.ticket.status}"
    else: []
`

// InvalidDefinition references a variable no step binds.
const InvalidDefinition = `id: broken
name: Broken
payloadSchemaRef: payload.Ticket.v1
steps:
  - id: note
    type: log.write
    config:
      message: "${vars.missing.id}"
`

// TriggeredDefinition is started by ticket.created and uses the event's
// payload schema.
const TriggeredDefinition = `id: on-ticket
name: On ticket
trigger:
  type: event
  eventName: ticket.created
steps:
  - id: loop
    type: control.forEach
    items: {$expr: "${payload.tags}"}
    itemVar: tag
    body:
      - id: note
        type: log.write
        config:
          message: "${tag} at ${tagIndex}"
`
