package recovery

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/ovisfs/sheep/cmn"
	"github.com/ovisfs/sheep/ring"
)

func TestRecovery(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "recovery")
}

func sortedTaskOids() []cmn.OID {
	oids := []cmn.OID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	sortByObjCmp(oids)
	return oids
}

func sortByObjCmp(oids []cmn.OID) {
	for i := 1; i < len(oids); i++ {
		for j := i; j > 0 && ring.ObjCmp(oids[j], oids[j-1]) < 0; j-- {
			oids[j], oids[j-1] = oids[j-1], oids[j]
		}
	}
}

var _ = Describe("Task", func() {
	It("keeps the tail sorted by obj_cmp after a promotion", func() {
		oids := sortedTaskOids()
		task := &Task{Epoch: 5, Oids: append([]cmn.OID(nil), oids...), Count: len(oids), State: StateRun}

		target := oids[len(oids)-1]
		Expect(task.IsRecoveringOid(target, 5)).To(BeTrue())

		tail := task.Oids[task.Done+task.NrBlocking : task.Count]
		for i := 1; i < len(tail); i++ {
			Expect(ring.ObjCmp(tail[i-1], tail[i])).To(BeNumerically("<=", 0))
		}
	})

	It("always blocks foreground I/O while still INIT", func() {
		task := &Task{State: StateInit, Epoch: 1}
		Expect(task.IsRecoveringOid(cmn.OID(123), 1)).To(BeTrue())
	})

	It("blocks foreground I/O for OIDs already in the blocking prefix", func() {
		oids := sortedTaskOids()
		task := &Task{Epoch: 5, Oids: oids, Count: len(oids), NrBlocking: 2, State: StateRun}
		Expect(task.IsRecoveringOid(oids[0], 5)).To(BeTrue())
		Expect(task.IsRecoveringOid(oids[1], 5)).To(BeTrue())
	})

	It("lets foreground I/O proceed for an OID not found anywhere", func() {
		oids := sortedTaskOids()
		task := &Task{Epoch: 5, Oids: oids, Count: len(oids), State: StateRun}
		Expect(task.IsRecoveringOid(cmn.OID(99999), 5)).To(BeFalse())
	})

	It("merges new OIDs without duplicating existing ones", func() {
		task := &Task{Oids: []cmn.OID{1, 2, 3}, Count: 3}
		task.MergeOids([]cmn.OID{2, 3, 4, 5})
		Expect(task.Count).To(Equal(5))
		Expect(task.Oids).To(ConsistOf(cmn.OID(1), cmn.OID(2), cmn.OID(3), cmn.OID(4), cmn.OID(5)))
	})

	It("reports finished once done reaches count", func() {
		task := &Task{Done: 3, Count: 3}
		Expect(task.Finished()).To(BeTrue())
		task.Done = 2
		Expect(task.Finished()).To(BeFalse())
	})
})
