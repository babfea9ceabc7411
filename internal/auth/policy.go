package auth

import (
	"sync"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/pkg/errors"

	"prekeyd/internal/domain"
)

// Subject is the class of caller an operation is checked for.
type Subject string

const (
	SubjectAccount         Subject = "account"
	SubjectDisabledAccount Subject = "disabled_account"
	SubjectUnidentified    Subject = "unidentified"
)

// Operation names a key endpoint.
type Operation string

const (
	OpKeyCount        Operation = "keys:count"
	OpSignedPreKeyGet Operation = "keys:signed:get"
	OpSignedPreKeyPut Operation = "keys:signed:put"
	OpUpload          Operation = "keys:upload"
	OpFetch           Operation = "keys:fetch"
)

// ACL model for casbin: a subject class is allowed an operation when a policy
// line names both.
const policyModel = `
[request_definition]
r = sub, op

[policy_definition]
p = sub, op

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.op == p.op
`

// DefaultPolicyRules grants enabled accounts every operation, disabled
// accounts only uploads and unidentified callers only bundle fetches.
var DefaultPolicyRules = [][]string{
	{string(SubjectAccount), string(OpKeyCount)},
	{string(SubjectAccount), string(OpSignedPreKeyGet)},
	{string(SubjectAccount), string(OpSignedPreKeyPut)},
	{string(SubjectAccount), string(OpUpload)},
	{string(SubjectAccount), string(OpFetch)},
	{string(SubjectDisabledAccount), string(OpUpload)},
	{string(SubjectUnidentified), string(OpFetch)},
}

// Policy decides which subject classes may call which operations.
type Policy struct {
	mu       sync.RWMutex
	enforcer *casbin.Enforcer
}

// NewPolicy builds a policy from rules, each a {subject, operation} pair.
func NewPolicy(rules [][]string) (*Policy, error) {
	m, err := model.NewModelFromString(policyModel)
	if err != nil {
		return nil, errors.Wrap(err, "authz model")
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, errors.Wrap(err, "authz enforcer")
	}
	for _, rule := range rules {
		if len(rule) != 2 {
			return nil, errors.Errorf("authz rule %v: want subject and operation", rule)
		}
		if _, err := e.AddPolicy(rule[0], rule[1]); err != nil {
			return nil, errors.Wrapf(err, "authz rule %v", rule)
		}
	}
	return &Policy{enforcer: e}, nil
}

// NewDefaultPolicy returns the policy built from DefaultPolicyRules.
func NewDefaultPolicy() (*Policy, error) {
	return NewPolicy(DefaultPolicyRules)
}

// SubjectOf classifies requester.
func SubjectOf(requester domain.Requester) Subject {
	switch {
	case !requester.Authenticated():
		return SubjectUnidentified
	case !requester.Account.Enabled:
		return SubjectDisabledAccount
	default:
		return SubjectAccount
	}
}

// Authorize returns ErrUnauthorized unless subject may perform op.
func (p *Policy) Authorize(subject Subject, op Operation) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ok, err := p.enforcer.Enforce(string(subject), string(op))
	if err != nil {
		return errors.Wrap(err, "authz")
	}
	if !ok {
		return errors.Wrapf(domain.ErrUnauthorized, "%s may not %s", subject, op)
	}
	return nil
}
