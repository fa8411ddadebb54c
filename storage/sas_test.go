package storage

import (
	"time"

	chk "gopkg.in/check.v1"
)

func (s *StorageClientSuite) Test_SAS_roundTrip(c *chk.C) {
	policy := SignedAccessPolicy{
		Permissions: "r",
		Expiry:      time.Date(2020, 5, 30, 8, 0, 0, 0, time.UTC),
	}

	token, err := GenerateSAS("blob", "storagesample", "YmFy", "/container/blob", policy, DefaultAPIVersion)
	c.Assert(err, chk.IsNil)
	c.Assert(token, chk.Not(chk.Equals), "")

	parsed, err := ParseSAS(token)
	c.Assert(err, chk.IsNil)
	c.Assert(parsed.Version, chk.Equals, DefaultAPIVersion)
	c.Assert(parsed.Policy.Permissions, chk.Equals, "r")
	c.Assert(parsed.Policy.Expiry.Equal(policy.Expiry), chk.Equals, true)
}

func (s *StorageClientSuite) Test_SAS_rejectsUnknownVersion(c *chk.C) {
	_, err := GenerateSAS("blob", "storagesample", "YmFy", "/container/blob", SignedAccessPolicy{
		Permissions: "r",
		Expiry:      time.Now(),
	}, "1999-01-01")
	c.Assert(err, chk.NotNil)
	se, ok := err.(*StorageError)
	c.Assert(ok, chk.Equals, true)
	c.Assert(se.Kind, chk.Equals, ErrInvalidInput)
}

func (s *StorageClientSuite) Test_SAS_tableRowRange(c *chk.C) {
	policy := SignedAccessPolicy{
		Permissions: "rd",
		Expiry:      time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		TableRowRange: &TableRowRange{
			StartPartitionKey: "pk0",
			EndPartitionKey:   "pk9",
		},
	}

	token, err := GenerateSAS("table", "storagesample", "YmFy", "/mytable", policy, DefaultAPIVersion)
	c.Assert(err, chk.IsNil)

	parsed, err := ParseSAS(token)
	c.Assert(err, chk.IsNil)
	c.Assert(parsed.Policy.TableRowRange, chk.NotNil)
	c.Assert(parsed.Policy.TableRowRange.StartPartitionKey, chk.Equals, "pk0")
	c.Assert(parsed.Policy.TableRowRange.EndPartitionKey, chk.Equals, "pk9")
}
